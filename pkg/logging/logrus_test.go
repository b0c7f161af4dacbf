package logging

import (
	"bytes"
	"os"
	"testing"

	"github.com/janael-pinheiro/lurker-mesh-golang/pkg/entities"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestCreateLogger(t *testing.T) {
	log := NewLogrus("warn", os.Stdout)

	assert.Equal(t, logrus.WarnLevel, log.Level())
}

func TestGivenInvalidLevelThenInfo(t *testing.T) {
	log := NewLogrus("chatty", os.Stdout)

	assert.Equal(t, logrus.InfoLevel, log.Level())
}

func TestGetLogger(t *testing.T) {
	log := NewLogrus("info", os.Stdout)
	logger := log.Get("Testing")
	assert.Equal(t, os.Stdout, logger.Logger.Out)
	assert.Equal(t, "Testing", logger.Data["Context"])
}

func TestForUnitWritesUnitField(t *testing.T) {
	var out bytes.Buffer
	log := NewLogrus("debug", &out)
	log.ForUnit("session", entities.UnitIdentity{Class: "lurker", ID: 3}).Info("joined")

	assert.Contains(t, out.String(), "Unit=lurker3")
	assert.Contains(t, out.String(), "Context=session")
}
