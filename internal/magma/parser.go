// Package magma interprets the text transcript printed by the Magma interpreter.
//
// A transcript has three regions:
//
//	Magma V2.29-4     Fri Jan 31 2026 12:00:00 on linux   [Seed = 1234567890]   <- banner
//	quit.                                                                       <- sentinel
//	2                                                                           <- body
//	Total time: 0.050 seconds, Total memory usage: 12.34MB                      <- footer
//
// Any region may be missing: a process killed mid-run never prints the
// sentinel or the footer. Parsing never fails; absent fields stay nil.
package magma

import (
	"strconv"
	"strings"
)

// ParsedOutput is the typed view of one transcript.
// Pointer fields are nil when the corresponding token was not found.
type ParsedOutput struct {
	Version   *string
	Seed      *int64
	Body      string
	TimeSec   *float64
	Memory    *string
	Truncated bool
	Warnings  []string
}

// Parse splits stdout into banner, body and footer, extracts the typed fields
// and synthesises warnings. The body is cut to at most maxBodyBytes bytes.
//
// Warnings are appended in detection order: memory limit, interpreter error,
// truncation.
func Parse(stdout string, maxBodyBytes int) ParsedOutput {
	out := ParsedOutput{Warnings: []string{}}

	if stdout == "" {
		return out
	}

	banner, rest, found := strings.Cut(stdout, QuitSentinel)
	extractBanner(banner, &out)
	if !found {
		// Never reached the quit statement: banner only.
		return out
	}

	body := rest
	if loc := reFooterStart.FindStringIndex(rest); loc != nil {
		body = rest[:loc[0]]
		extractFooter(rest[loc[0]:], &out)
	}

	body = strings.TrimRight(body, "\n")
	if body != "" {
		body += "\n"
	}
	body = reMachineType.ReplaceAllString(body, "")

	if strings.Contains(body, memoryLimitMarker) {
		out.Warnings = append(out.Warnings, WarnMemoryLimit)
	}

	for _, marker := range errorMarkers {
		if strings.Contains(body, marker) {
			out.Warnings = append(out.Warnings, WarnError)
			break
		}
	}

	if maxBodyBytes >= 0 && len(body) > maxBodyBytes {
		body = body[:maxBodyBytes]
		out.Truncated = true
		out.Warnings = append(out.Warnings, WarnTruncated)
	}

	out.Body = body
	return out
}

func extractBanner(text string, out *ParsedOutput) {
	if m := reVersion.FindStringSubmatch(text); m != nil {
		v := m[1]
		out.Version = &v
	}
	if m := reSeed.FindStringSubmatch(text); m != nil {
		// The pattern only admits digits; overflow is the only failure.
		if seed, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			out.Seed = &seed
		}
	}
}

func extractFooter(text string, out *ParsedOutput) {
	if m := reTime.FindStringSubmatch(text); m != nil {
		if sec, err := strconv.ParseFloat(m[1], 64); err == nil {
			out.TimeSec = &sec
		}
	}
	if m := reMemory.FindStringSubmatch(text); m != nil {
		mem := m[1]
		out.Memory = &mem
	}
}
