package magma

import "strings"

// ParseStderrWarnings scans stderr for any of signals and returns at most one
// time-limit warning. A nil or empty signals slice uses DefaultStderrSignals.
func ParseStderrWarnings(stderr string, signals []string) []string {
	if stderr == "" {
		return nil
	}
	if len(signals) == 0 {
		signals = DefaultStderrSignals
	}
	for _, sig := range signals {
		if sig != "" && strings.Contains(stderr, sig) {
			return []string{WarnTimeLimit}
		}
	}
	return nil
}
