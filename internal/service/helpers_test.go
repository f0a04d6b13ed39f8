package service

import (
	"io"

	"github.com/conversion-tracker/internal/logging"
)

// testLogger returns a logger that swallows output
func testLogger() *logging.Logger {
	l := logging.NewLogger(logging.LevelFatal, logging.FormatText)
	l.SetOutput(io.Discard)
	return l
}
