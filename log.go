package bridge

import (
	"os"

	"github.com/btcsuite/btclog"
)

var (
	backendLog = btclog.NewBackend(logWriter{})
	log        = backendLog.Logger("BRDG")
)

// logWriter implements an io.Writer that outputs to standard output.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	return len(p), nil
}

// UseLogger uses a specified logger to output package logging info. Callers
// embedding the engine can route its output into their own log backend.
func UseLogger(logger btclog.Logger) {
	log = logger
}
