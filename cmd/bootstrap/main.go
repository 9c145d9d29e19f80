package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/3s-rg-codes/faas-runtime/pkg/event"
	"github.com/3s-rg-codes/faas-runtime/pkg/handler"
	"github.com/3s-rg-codes/faas-runtime/pkg/loop"
	"github.com/3s-rg-codes/faas-runtime/pkg/runtimeapi"
	"github.com/3s-rg-codes/faas-runtime/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(os.Stdout).Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "bootstrap",
		Usage:  "custom runtime: polls the runtime API, or runs the handler once against a local event file",
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "runtime-api",
				Usage:   "host:port of the runtime API, selects runtime mode when set",
				Sources: cli.EnvVars("AWS_LAMBDA_RUNTIME_API"),
			},
			&cli.Int64Flag{
				Name:    "max-loop",
				Usage:   "number of invocations to handle before exiting",
				Value:   10,
				Sources: cli.EnvVars("MAX_LOOP"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "timeout for each runtime API request, 0 waits forever. example: 30s, 1m",
				Value:   0,
				Sources: cli.EnvVars("RUNTIME_HTTP_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "on-error",
				Usage:   "what a failed invocation does to the loop (continue, abort)",
				Value:   string(loop.Continue),
				Sources: cli.EnvVars("RUNTIME_ERROR_POLICY"),
			},
			&cli.BoolFlag{
				Name:    "report-errors",
				Usage:   "post failed invocations to the runtime API error endpoint",
				Value:   true,
				Sources: cli.EnvVars("RUNTIME_REPORT_ERRORS"),
			},
			&cli.StringFlag{
				Name:    "event-file",
				Usage:   "event used in local mode (defaults to event.json next to the executable)",
				Sources: cli.EnvVars("RUNTIME_EVENT_FILE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json or dev)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.StringFlag{
				Name:    "log-file",
				Usage:   "Log file path (defaults to stderr)",
				Sources: cli.EnvVars("LOG_FILE"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var c Config
			c.General.RuntimeAPI = cmd.String("runtime-api")
			c.General.MaxLoop = int(cmd.Int64("max-loop"))
			c.General.HTTPTimeout = cmd.Duration("timeout")
			c.General.EventFile = cmd.String("event-file")
			c.Errors.Policy = cmd.String("on-error")
			c.Errors.Report = cmd.Bool("report-errors")
			c.Log.Level = cmd.String("log-level")
			c.Log.Format = cmd.String("log-format")
			c.Log.FilePath = cmd.String("log-file")
			c.applyDefaults()

			logger, err := utils.SetupLogger(c.Log.Level, c.Log.Format, c.Log.FilePath)
			if err != nil {
				return err
			}

			switch c.Mode() {
			case RuntimeMode:
				return runRuntime(ctx, &c, logger)
			default:
				return runLocal(&c, stdout, logger)
			}
		},
	}
}

func runRuntime(ctx context.Context, c *Config, logger *slog.Logger) error {
	policy, err := loop.ParseErrorPolicy(c.Errors.Policy)
	if err != nil {
		return err
	}

	logger.Info("Starting runtime loop",
		"mode", RuntimeMode,
		"base_url", c.BaseURL(),
		"max_loop", c.General.MaxLoop,
		"timeout", c.General.HTTPTimeout,
		"policy", policy)

	client := runtimeapi.NewClient(c.BaseURL(), c.General.HTTPTimeout, logger)
	h := handler.New()
	l := loop.New(client, func(e event.Event) (any, error) {
		return h.Handle(e)
	}, loop.Config{
		MaxLoop:      c.General.MaxLoop,
		Policy:       policy,
		ReportErrors: c.Errors.Report,
	}, logger)

	n, err := l.Run(ctx)
	logger.Info("Runtime loop finished", "iterations", n)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runLocal(c *Config, stdout io.Writer, logger *slog.Logger) error {
	logger = logger.With("mode", LocalMode, "request_id", uuid.NewString())
	logger.Debug("Reading local event", "path", c.General.EventFile)

	b, err := os.ReadFile(c.General.EventFile)
	if err != nil {
		return fmt.Errorf("reading local event: %w", err)
	}

	e, err := event.Parse(c.General.EventFile, b)
	if err != nil {
		return err
	}

	result, err := handler.New().Handle(e)
	if err != nil {
		return err
	}

	out, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	if _, err := fmt.Fprintln(stdout, string(out)); err != nil {
		return err
	}
	logger.Debug("Local invocation finished")
	return nil
}
