package evm

import (
	"os"

	"github.com/btcsuite/btclog"
)

var (
	backendLog = btclog.NewBackend(logWriter{})
	log        = backendLog.Logger("EVM")
)

// logWriter implements an io.Writer that outputs to standard output.
type logWriter struct{}

func (logWriter) Write(p []byte) (n int, err error) {
	os.Stdout.Write(p)
	return len(p), nil
}
