package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/ironsheep/marker-pose-mcp/internal/camera"
	"github.com/ironsheep/marker-pose-mcp/internal/config"
	"github.com/ironsheep/marker-pose-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("marker-pose-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("marker-pose-mcp - MCP server for square marker tracking and pose estimation")
			fmt.Println()
			fmt.Println("Usage: marker-pose-mcp [options]")
			fmt.Println()
			fmt.Println("Options:")
			fmt.Println("  --version, -v    Print version information")
			fmt.Println("  --help, -h       Print this help message")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  MARKER_MCP_LOG_LEVEL=debug          Log level (debug, info, warn, error)")
			fmt.Println("  MARKER_MCP_LOG_FORMAT=console       Human readable logs instead of JSON")
			fmt.Println("  MARKER_MCP_CAMERA=/path/camera.json Calibration file, reloaded on change")
			fmt.Println("  MARKER_MCP_TUNING=/path/tuning.json Tracker tuning overrides")
			fmt.Println()
			fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
			fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
			return
		}
	}

	os.Exit(run(os.Getenv, os.Stdin, os.Stdout, os.Stderr))
}

// run serves MCP on stdin/stdout and returns the process exit code.
// Failures are returned rather than fatal so deferred cleanup, such as
// stopping the calibration watcher, always runs.
func run(getenv func(string) string, stdin io.Reader, stdout, stderr io.Writer) int {
	// Logs go to stderr (stdout is for MCP protocol)
	logger := newLogger(stderr, getenv("MARKER_MCP_LOG_LEVEL"), getenv("MARKER_MCP_LOG_FORMAT"))
	logger.Debug().
		Str("version", Version).
		Str("build_time", BuildTime).
		Str("commit", GitCommit).
		Msg("marker MCP server starting")

	var tuning *config.TuningConfig
	if path := getenv("MARKER_MCP_TUNING"); path != "" {
		cfg, err := config.LoadTuningConfig(path)
		if err != nil {
			logger.Error().Err(err).Str("path", path).Msg("failed to load tuning")
			return 1
		}
		tuning = cfg
		logger.Info().Str("path", path).Msg("tuning loaded")
	}

	srv := server.New(server.Options{
		Logger:  logger,
		Cameras: camera.NewStore(nil),
		Tuning:  tuning,
		Version: Version,
	})
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn().Err(err).Msg("server close")
		}
	}()

	if path := getenv("MARKER_MCP_CAMERA"); path != "" {
		if err := srv.Watch(path); err != nil {
			logger.Error().Err(err).Str("path", path).Msg("failed to load calibration")
			return 1
		}
	}

	if err := srv.Serve(stdin, stdout); err != nil {
		logger.Error().Err(err).Msg("server error")
		return 1
	}
	return 0
}

func newLogger(out io.Writer, level, format string) zerolog.Logger {
	w := out
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: out}
	}
	logger := zerolog.New(w).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	if level == "" {
		return logger
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		logger.Warn().Str("level", level).Msg("invalid MARKER_MCP_LOG_LEVEL, using info")
		return logger
	}
	return logger.Level(lvl)
}
