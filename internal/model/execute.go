package model

// ExecuteRequest is the POST /execute body. Code is a pointer so a missing
// field can be told apart from an empty program.
type ExecuteRequest struct {
	Code *string `json:"code"`
}

// MagmaInfo carries the interpreter metadata scraped from the transcript.
// Every field is null when the transcript did not contain it.
type MagmaInfo struct {
	Version *string  `json:"version"`
	Seed    *int64   `json:"seed"`
	TimeSec *float64 `json:"time_sec"`
	Memory  *string  `json:"memory"`
}

// ExecuteResponse is the POST /execute verdict.
type ExecuteResponse struct {
	Success   bool      `json:"success"`
	Stdout    string    `json:"stdout"`
	ExitCode  int       `json:"exit_code"`
	Truncated bool      `json:"truncated"`
	Magma     MagmaInfo `json:"magma"`
	Warnings  []string  `json:"warnings"`
	Error     string    `json:"error,omitempty"`
}
