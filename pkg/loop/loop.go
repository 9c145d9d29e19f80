package loop

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/3s-rg-codes/faas-runtime/pkg/event"
	"github.com/3s-rg-codes/faas-runtime/pkg/runtimeapi"
)

// ErrorPolicy decides what a failed iteration does to the rest of the loop.
type ErrorPolicy string

const (
	// Continue logs the failure, skips the response for that iteration and fetches the next event.
	Continue ErrorPolicy = "continue"
	// Abort stops the loop and returns the failure.
	Abort ErrorPolicy = "abort"
)

func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case Continue, Abort:
		return ErrorPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown error policy %q, expected %q or %q", s, Continue, Abort)
	}
}

// RuntimeClient is the part of the runtime API the loop needs.
type RuntimeClient interface {
	Next(ctx context.Context) (*runtimeapi.Invocation, error)
	PostResponse(ctx context.Context, requestID string, result any) error
	PostError(ctx context.Context, requestID string, cause error) error
	NextURL() string
}

// HandlerFunc turns one event into a JSON serializable result.
type HandlerFunc func(event.Event) (any, error)

type Config struct {
	MaxLoop int
	Policy  ErrorPolicy
	// ReportErrors posts handler and payload failures to the error endpoint when the request id is known.
	ReportErrors bool
}

type Loop struct {
	client  RuntimeClient
	handler HandlerFunc
	config  Config
	logger  *slog.Logger
}

func New(client RuntimeClient, handler HandlerFunc, config Config, logger *slog.Logger) *Loop {
	if config.Policy == "" {
		config.Policy = Continue
	}
	return &Loop{
		client:  client,
		handler: handler,
		config:  config,
		logger:  logger,
	}
}

// Run fetches, handles and answers invocations until MaxLoop iterations have
// run, the context is cancelled, or an iteration fails under the Abort policy.
// It returns the number of iterations started.
func (l *Loop) Run(ctx context.Context) (int, error) {
	currentLoop := 0
	for {
		currentLoop++
		if currentLoop > l.config.MaxLoop {
			l.logger.Info("Reached max loop, stopping", "max_loop", l.config.MaxLoop)
			return currentLoop - 1, nil
		}
		if err := ctx.Err(); err != nil {
			l.logger.Info("Loop cancelled", "iteration", currentLoop)
			return currentLoop - 1, err
		}

		logger := l.logger.With("iteration", currentLoop)
		if err := l.iterate(ctx, logger); err != nil {
			logger.Error("Iteration failed", "error", err, "policy", l.config.Policy)
			if l.config.Policy == Abort {
				return currentLoop, err
			}
		}
	}
}

func (l *Loop) iterate(ctx context.Context, logger *slog.Logger) error {
	inv, err := l.client.Next(ctx)
	if err != nil {
		if inv != nil && inv.RequestID != "" {
			l.reportError(ctx, logger, inv.RequestID, err)
		}
		return err
	}
	if inv.RequestID == "" {
		return &runtimeapi.MissingRequestIDError{URL: l.client.NextURL()}
	}

	logger = logger.With("request_id", inv.RequestID)
	logger.Debug("Received invocation",
		"function_arn", inv.FunctionARN,
		"trace_id", inv.TraceID,
		"deadline", inv.Deadline,
		"size", len(inv.Event.Raw()))

	result, err := l.handler(inv.Event)
	if err != nil {
		l.reportError(ctx, logger, inv.RequestID, err)
		return err
	}

	if err := l.client.PostResponse(ctx, inv.RequestID, result); err != nil {
		return err
	}
	logger.Debug("Response posted")
	return nil
}

func (l *Loop) reportError(ctx context.Context, logger *slog.Logger, requestID string, cause error) {
	if !l.config.ReportErrors {
		return
	}
	if err := l.client.PostError(ctx, requestID, cause); err != nil {
		logger.Warn("Failed to report invocation error", "error", err)
	}
}
