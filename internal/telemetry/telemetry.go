// Package telemetry builds the logger and metrics registry shared by every
// component of the shepherd toolkit.
package telemetry

import (
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// NewLogger builds a zerolog logger. Output is pretty-printed when stdout is
// a terminal and newline-delimited JSON otherwise, matching how the rest of
// this toolkit's ancestor indexer set up its logging.
func NewLogger(level string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(level))

	if isTerminal() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "tx-shepherd").
		Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// ServeMetrics starts a background HTTP server exposing the default
// Prometheus registry on addr. A blank addr disables the server entirely.
func ServeMetrics(addr string, logger zerolog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics server exited")
		}
	}()
}
