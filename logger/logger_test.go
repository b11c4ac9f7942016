package logger

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, false)
	log.Debug("hidden")
	log.Info("wrote manifest", "target", "amcabc", "empty", "")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "wrote manifest")
	assert.Contains(t, out, "target=amcabc")
	assert.NotContains(t, out, "empty=")
	assert.NotContains(t, out, "\x1b[", "no color codes when not writing to a terminal")

	buf.Reset()
	NewWithWriter(&buf, true).Debug("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestFormatRFC3339Millis(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456789, time.FixedZone("X", 3600))
	assert.Equal(t, "2024-03-01T11:30:45.123Z", formatRFC3339Millis(ts))
}

func TestDiscard(t *testing.T) {
	Discard().Error("nothing happens")
}
