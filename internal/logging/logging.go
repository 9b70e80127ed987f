// Package logging wires up hintproxy's structured logger. Grounded on the
// folbricht-routedns CLI, which sets a package-wide logrus level from a
// --log-level flag and has call sites build contextual loggers with
// logrus.WithField/WithFields (see blocklist.go's
// `log.WithFields(logrus.Fields{"list": ..., "rule": ...})`); hintproxy's
// components build loggers the same way, tagging each with a "component"
// field instead of routedns's "resolver"/"list" fields.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Base is the process-wide logger. Components derive a scoped entry from
// it via For rather than logging through it directly.
var Base = logrus.New()

func init() {
	Base.SetOutput(os.Stderr)
	Base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel parses a level name ("debug", "info", "warn", "error") the same
// way the CLI's --log-level flag does, defaulting to info on a bad value
// instead of failing startup.
func SetLevel(name string) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		level = logrus.InfoLevel
	}
	Base.SetLevel(level)
}

// For returns a logger scoped to a single component, e.g.
// logging.For("mitm") or logging.For("cache").
func For(component string) *logrus.Entry {
	return Base.WithField("component", component)
}
