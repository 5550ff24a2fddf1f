package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/wormhole/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns the loaded and
// validated configuration, a boolean indicating if the program should exit
// cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*config.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("wormhole", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Wormhole - live wormhole map tracker client.

Usage:
  wormhole [options] [CONFIG_PATH]

Arguments:
  CONFIG_PATH
    Path to an optional .hcl configuration file. Flags override its values.

Options:
`)
		flagSet.PrintDefaults()
	}

	configFlag := flagSet.String("config", "", "Path to the .hcl configuration file.")
	urlFlag := flagSet.String("url", "", "Map server endpoint, e.g. ws://localhost:8888/poll.")
	transportFlag := flagSet.String("transport", "", "Transport adapter. Options: 'websocket' or 'socketio'.")
	backupFlag := flagSet.Duration("backup-interval", 0, "How often to report the map while tracking.")
	renderFlag := flagSet.String("render", "", "Renderer. Options: 'log', 'dot' or 'none'.")
	renderPathFlag := flagSet.String("render-path", "", "Output file for the 'dot' renderer.")
	httpPortFlag := flagSet.Int("http-port", 0, "Port for the local HTTP control surface. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	trackFlag := flagSet.Bool("track", false, "Start tracking as soon as the connection is up.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := *configFlag
	if path == "" && flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected arguments: %s", strings.Join(flagSet.Args()[1:], " "))}
	}
	slog.Debug("Config path determined.", "path", path)

	cfg, err := config.Load(context.Background(), path)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	// Only flags given explicitly override the file.
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "url":
			cfg.Server.URL = *urlFlag
		case "transport":
			cfg.Server.Transport = strings.ToLower(*transportFlag)
		case "backup-interval":
			cfg.Tracking.BackupInterval = *backupFlag
		case "render":
			cfg.Render.Kind = strings.ToLower(*renderFlag)
		case "render-path":
			cfg.Render.Path = *renderPathFlag
		case "http-port":
			cfg.HTTP.Port = *httpPortFlag
		case "log-format":
			cfg.Log.Format = strings.ToLower(*logFormatFlag)
		case "log-level":
			cfg.Log.Level = strings.ToLower(*logLevelFlag)
		case "track":
			cfg.Tracking.AutoTrack = *trackFlag
		}
	})

	if err := config.Validate(cfg); err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("CLI parameter validation complete.")

	slog.Debug("CLI parser finished successfully.", "url", cfg.Server.URL, "transport", cfg.Server.Transport)
	return cfg, false, nil
}

