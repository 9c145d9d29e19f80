package handler

import (
	"time"

	"github.com/3s-rg-codes/faas-runtime/pkg/event"
)

const (
	// TimeLayout renders as YYYY-MM-DD HH:MM:SS UTC.
	TimeLayout = "2006-01-02 15:04:05 UTC"

	SourceIPPath  = "requestContext.http.sourceIp"
	UserAgentPath = "requestContext.http.userAgent"
)

// Result is what the function returns for one invocation.
type Result struct {
	IPv4Address string `json:"ipv4_address"`
	UserAgent   string `json:"user_agent"`
	Time        string `json:"time"`
}

// Handler reports the caller's address and user agent back to them.
type Handler struct {
	now func() time.Time
}

func New() *Handler {
	return &Handler{now: time.Now}
}

// NewWithClock creates a Handler that reads the time from now instead of the system clock.
func NewWithClock(now func() time.Time) *Handler {
	return &Handler{now: now}
}

// Handle maps an invocation event to a Result. It fails with *MissingFieldError
// if the event lacks the source ip or the user agent.
func (h *Handler) Handle(e event.Event) (*Result, error) {
	sourceIP, ok := e.String(SourceIPPath)
	if !ok {
		return nil, &MissingFieldError{Field: SourceIPPath}
	}
	userAgent, ok := e.String(UserAgentPath)
	if !ok {
		return nil, &MissingFieldError{Field: UserAgentPath}
	}

	return &Result{
		IPv4Address: sourceIP,
		UserAgent:   userAgent,
		Time:        h.now().UTC().Format(TimeLayout),
	}, nil
}
