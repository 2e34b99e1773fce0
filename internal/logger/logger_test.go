package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithOutput(&buf, "debug", "json")
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, l.GetLevel())

	l.WithField("conversation_id", "conv-1").Info("Analysis completed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "conv-1", entry["conversation_id"])
	require.Equal(t, "Analysis completed", entry["msg"])
	require.Equal(t, "info", entry["level"])
}

func TestNew_TextAndDefaults(t *testing.T) {
	var buf bytes.Buffer
	l, err := newWithOutput(&buf, "", "text")
	require.NoError(t, err)
	require.Equal(t, logrus.InfoLevel, l.GetLevel())

	l.Debug("hidden")
	require.Zero(t, buf.Len())
	l.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New("loud", "json")
	require.Error(t, err)

	_, err = New("info", "xml")
	require.ErrorContains(t, err, "unknown format")
}
