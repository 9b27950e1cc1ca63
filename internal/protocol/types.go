package protocol

import "time"

// Version is the only protocol version spoken to processor plugins.
const Version = 1

// Methods a processor plugin may be asked to serve.
const (
	MethodProcessText = "processText"
	MethodHealth      = "health"
)

// Response status values.
const (
	StatusOK             = "ok"
	StatusError          = "error"
	StatusNotImplemented = "not_implemented"
)

// Request is the envelope written to a processor plugin's stdin.
type Request struct {
	Protocol   int       `json:"protocol"`
	RequestID  string    `json:"request_id"`
	Method     string    `json:"method"` // processText | health
	Text       string    `json:"text,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	DeadlineAt time.Time `json:"deadline_at"`
}

// Response is the envelope read from a processor plugin's stdout.
type Response struct {
	Status string     `json:"status"` // ok | error | not_implemented
	Result *string    `json:"result,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
	Logs   []LogEntry `json:"logs,omitempty"`
}

// ErrorBody is the structured failure reported by a plugin.
// Retryable marks failures the plugin expects to clear on their own (still warming up).
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// LogEntry represents a log message from a plugin.
type LogEntry struct {
	Level   string `json:"level"` // info | warn | error | debug
	Message string `json:"message"`
}

// ResultText returns the result string, or "" when the plugin omitted it.
func (r *Response) ResultText() string {
	if r.Result == nil {
		return ""
	}
	return *r.Result
}
