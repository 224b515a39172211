package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/driftline/odometry.report/internal/vo"
	"github.com/driftline/odometry.report/internal/vo/sparse"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// ConfigureStreams routes the tiered per-package log streams (ops, diag,
// trace) according to a verbosity level. "ops" enables only actionable
// warnings, "diag" adds stage transitions and tuning context, "trace" adds
// per-frame telemetry. A nil writer defaults to stderr.
func ConfigureStreams(level string, w io.Writer) error {
	if w == nil {
		w = os.Stderr
	}

	var ops, diag, trace io.Writer
	switch level {
	case "", "ops":
		ops = w
	case "diag":
		ops, diag = w, w
	case "trace":
		ops, diag, trace = w, w, w
	case "off":
	default:
		return fmt.Errorf("unknown log level %q (want ops, diag, trace, or off)", level)
	}

	vo.SetLogWriters(ops, diag, trace)
	sparse.SetLogWriters(ops, diag, trace)
	return nil
}
