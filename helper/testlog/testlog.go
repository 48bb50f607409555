// Package testlog creates hclog loggers backed by testing.T so component
// logs interleave with test output and stay silent on passing runs.
package testlog

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// LogPrinter is the subset of testing.T and testing.B needed by the writer.
type LogPrinter interface {
	Logf(format string, args ...interface{})
}

// writer implements io.Writer on top of a LogPrinter.
type writer struct {
	t LogPrinter
}

func (w *writer) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

// NewWriter returns an io.Writer that forwards to t.Logf.
func NewWriter(t LogPrinter) io.Writer {
	return &writer{t: t}
}

// HCLogger returns a trace-level hclog.Logger writing through t.
func HCLogger(t LogPrinter) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Level:  hclog.Trace,
		Output: NewWriter(t),
	})
}
