package logging

import (
	"io"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/sirupsen/logrus"
)

// Logrus hands out context-tagged entries that share one logger.
type Logrus struct {
	level  logrus.Level
	logger *logrus.Logger
}

// NewLogrus creates a new logrus instance. An unparsable level falls back to
// info.
func NewLogrus(level string, output io.Writer) *Logrus {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log := logrus.New()
	log.SetLevel(parsed)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	log.SetOutput(output)
	return &Logrus{level: parsed, logger: log}
}

// Get returns a logrus entry for the given component
func (l *Logrus) Get(context string) *logrus.Entry {
	return l.logger.WithFields(logrus.Fields{
		"Context": context,
	})
}

// ForUnit tags the entry with the unit the component runs on.
func (l *Logrus) ForUnit(context string, unit entities.UnitIdentity) *logrus.Entry {
	return l.Get(context).WithField("Unit", unit.String())
}

func (l *Logrus) Level() logrus.Level {
	return l.level
}
