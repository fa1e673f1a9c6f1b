// Command fnhost serves the Functions API: validated function configurations,
// draft and deploy submissions, and sealed credentials.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("fnhost", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return ExitConfigError
	}

	if *showVersion {
		fmt.Printf("fnhost %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg)
	logger.Info("starting fnhost",
		"version", Version,
		"config", *configPath,
		"database", cfg.Database.DSN,
	)

	ctx := context.Background()
	server, err := NewServer(ctx, cfg, logger)
	if err != nil {
		return exitCode(logger, "failed to create server", err, ExitConfigError)
	}
	if err := server.Start(ctx); err != nil {
		return exitCode(logger, "server error", err, ExitHTTPServerError)
	}
	return ExitSuccess
}

// exitCode logs err and picks the exit code carried by a ServerError, or
// fallback for anything else.
func exitCode(logger *slog.Logger, msg string, err error, fallback int) int {
	var sErr *ServerError
	if errors.As(err, &sErr) {
		logger.Error(msg, "error", sErr.Err, "operation", sErr.Op)
		return sErr.ExitCode
	}
	logger.Error(msg, "error", err)
	return fallback
}
