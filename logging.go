// logging.go - Process-wide structured logger

package main

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var baseLog = logrus.New()

func init() {
	baseLog.SetOutput(os.Stderr)
	baseLog.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	baseLog.SetLevel(logrus.InfoLevel)
}

// componentLog returns a logger tagged with the emitting component name.
func componentLog(name string) *logrus.Entry {
	return baseLog.WithField("component", name)
}

// setLogVerbose switches debug logging on or off at runtime.
func setLogVerbose(verbose bool) {
	if verbose {
		baseLog.SetLevel(logrus.DebugLevel)
	} else {
		baseLog.SetLevel(logrus.InfoLevel)
	}
}

// setLogOutput redirects all engine logging; tests use io.Discard.
func setLogOutput(w io.Writer) {
	baseLog.SetOutput(w)
}
