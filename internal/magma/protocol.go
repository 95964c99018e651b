package magma

import "regexp"

// Transcript markers and patterns. The interpreter has no machine-readable
// output format; everything the parser knows about it lives in this file.
const (
	// QuitSentinel ends the banner. Everything after it is body and footer.
	QuitSentinel = "quit.\n"

	// memoryLimitMarker is printed by the interpreter when it hits its ceiling.
	memoryLimitMarker = "User memory limit"
)

var (
	reVersion     = regexp.MustCompile(`Magma V(\d+\.\d+(?:-[A-Za-z]*\d+)?)`)
	reSeed        = regexp.MustCompile(`\[Seed = (\d+)\]`)
	reFooterStart = regexp.MustCompile(`Total time:\s+\d+\.\d+ seconds, Total memory usage: `)
	reTime        = regexp.MustCompile(`Total time:\s+(\d+\.\d+)`)
	reMemory      = regexp.MustCompile(`Total memory usage: (\d+\.\d+[A-Za-z]+)`)
	reMachineType = regexp.MustCompile(`Machine type: .*\n`)
)

// errorMarkers are the interpreter's error prefixes. Any one of them in the
// body means the run failed, whatever the exit code says.
var errorMarkers = []string{
	"User error: ",
	"Runtime error in ",
	"(internal error)",
	"Illegal system call",
}

// DefaultStderrSignals are stderr substrings that mean the process was
// stopped by a time limit: the in-program alarm, the executor's hard kill and
// the sandbox's CPU rlimit.
var DefaultStderrSignals = []string{
	"Alarm clock",
	"Killed",
	"CPU time limit exceeded",
}

// Warning messages returned to clients.
const (
	WarnMemoryLimit = "The computation exceeded the memory limit and so was terminated prematurely."
	WarnError       = "An error occurred. See the output for details."
	WarnTruncated   = "The output is too long and has been truncated."
	WarnTimeLimit   = "The computation exceeded the time limit and so was terminated prematurely."
)
