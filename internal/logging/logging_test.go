package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessionrotor/internal/config"
)

func TestNewWithWriter_Text(t *testing.T) {
	buf := &bytes.Buffer{}

	logger, err := NewWithWriter(config.LogConfig{Level: "WARN", Format: "text"}, buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.WithField("workflow", "rotate-all").Warn("shown")

	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "workflow=rotate-all")
}

func TestNewWithWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}

	logger, err := NewWithWriter(config.LogConfig{Format: "json"}, buf)
	require.NoError(t, err)
	logger.WithField("step", "logout").Info("done")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "logout", entry["step"])
	assert.Equal(t, "done", entry["msg"])
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}

func TestNewWithWriter_Invalid(t *testing.T) {
	_, err := NewWithWriter(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)

	_, err = NewWithWriter(config.LogConfig{Format: "xml"}, &bytes.Buffer{})
	assert.Error(t, err)
}
