package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/3s-rg-codes/faas-runtime/pkg/event"
	"github.com/3s-rg-codes/faas-runtime/pkg/runtimeapi/emulator"
	"github.com/3s-rg-codes/faas-runtime/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := &cli.Command{
		Name:      "runtime-emulator",
		Usage:     "serve JSON event files over a local runtime API",
		ArgsUsage: "event files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "address",
				Usage:   "address to listen on, point AWS_LAMBDA_RUNTIME_API at it",
				Value:   "127.0.0.1:9001",
				Sources: cli.EnvVars("EMULATOR_ADDRESS"),
			},
			&cli.Int64Flag{
				Name:  "repeat",
				Usage: "how many times each event file is queued",
				Value: 1,
			},
			&cli.DurationFlag{
				Name:  "function-timeout",
				Usage: "added to the fetch time to compute each invocation deadline",
				Value: 3 * time.Second,
			},
			&cli.StringFlag{
				Name:  "function-arn",
				Usage: "ARN sent with every invocation",
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
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := utils.NewLogger(os.Stderr, cmd.String("log-level"), cmd.String("log-format"))

			payloads, err := loadEvents(cmd.Args().Slice())
			if err != nil {
				return err
			}

			s := emulator.New(emulator.Config{
				FunctionARN:     cmd.String("function-arn"),
				FunctionTimeout: cmd.Duration("function-timeout"),
			}, logger)

			go enqueue(s, payloads, int(cmd.Int64("repeat")), logger)

			return s.Serve(ctx, cmd.String("address"))
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// loadEvents reads and validates every event file up front so a typo fails before serving.
func loadEvents(paths []string) ([][]byte, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("at least one event file is required")
	}
	payloads := make([][]byte, 0, len(paths))
	for _, path := range paths {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading event file: %w", err)
		}
		if _, err := event.Parse(path, b); err != nil {
			return nil, err
		}
		payloads = append(payloads, b)
	}
	return payloads, nil
}

// enqueue blocks whenever the emulator queue is full, so it runs next to the server.
func enqueue(s *emulator.Server, payloads [][]byte, repeat int, logger *slog.Logger) {
	for i := 0; i < repeat; i++ {
		for _, p := range payloads {
			id := s.Enqueue(p)
			logger.Info("Queued event", "request_id", id)
		}
	}
}
