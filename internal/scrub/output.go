package scrub

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Output selects where log lines go. An empty File means stderr.
type Output struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Setup points the standard logger at out and returns a closer for the
// rotating file, if any.
func Setup(out Output) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if out.File == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil)
	}
	w := &lumberjack.Logger{
		Filename:   out.File,
		MaxSize:    out.MaxSizeMB,
		MaxBackups: out.MaxBackups,
		MaxAge:     out.MaxAgeDays,
		Compress:   out.Compress,
	}
	log.SetOutput(w)
	return w
}
