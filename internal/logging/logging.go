package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds the process logger: JSON in production, full-timestamp text
// otherwise. An unknown level falls back to info and is reported once.
func New(level string, prod bool) *logrus.Logger {
	return NewWithOutput(os.Stdout, level, prod)
}

func NewWithOutput(out io.Writer, level string, prod bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	if prod {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		log.SetLevel(logrus.InfoLevel)
		log.Warnf("unknown log level %q, using info", level)
		return log
	}
	log.SetLevel(parsed)
	return log
}
