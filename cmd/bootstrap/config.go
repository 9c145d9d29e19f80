package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/3s-rg-codes/faas-runtime/pkg/runtimeapi"
)

// Mode is chosen once at startup from the runtime API setting.
type Mode int

const (
	// LocalMode runs the handler once against an event file and prints the result.
	LocalMode Mode = iota
	// RuntimeMode polls the runtime API.
	RuntimeMode
)

func (m Mode) String() string {
	if m == RuntimeMode {
		return "runtime"
	}
	return "local"
}

const defaultEventFile = "event.json"

type Config struct {
	General struct {
		RuntimeAPI  string        `env:"AWS_LAMBDA_RUNTIME_API"`
		MaxLoop     int           `env:"MAX_LOOP"`
		HTTPTimeout time.Duration `env:"RUNTIME_HTTP_TIMEOUT"`
		EventFile   string        `env:"RUNTIME_EVENT_FILE"`
	}
	Errors struct {
		Policy string `env:"RUNTIME_ERROR_POLICY"`
		Report bool   `env:"RUNTIME_REPORT_ERRORS"`
	}
	Log struct {
		Level    string `env:"LOG_LEVEL"`
		Format   string `env:"LOG_FORMAT"`
		FilePath string `env:"LOG_FILE"`
	}
}

func (c *Config) Mode() Mode {
	if c.General.RuntimeAPI != "" {
		return RuntimeMode
	}
	return LocalMode
}

func (c *Config) BaseURL() string {
	return runtimeapi.BaseURL(c.General.RuntimeAPI)
}

// applyDefaults fills in the event file next to the executable if none was given.
func (c *Config) applyDefaults() {
	if c.General.EventFile == "" {
		c.General.EventFile = defaultEventFile
		if exe, err := os.Executable(); err == nil {
			c.General.EventFile = filepath.Join(filepath.Dir(exe), defaultEventFile)
		}
	}
}
