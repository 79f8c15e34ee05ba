package logx_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabouaram/nodelink/logx"
)

func newCapturingLogger(buf *bytes.Buffer) *logx.Logger {
	base := logrus.New()
	base.SetOutput(buf)
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetLevel(logrus.DebugLevel)
	return logx.New(base)
}

func TestLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := newCapturingLogger(&buf)

	l.WithField("addr", "10.0.0.1:7000").Info("connected", map[string]any{"attempt": 3})

	require.Contains(t, buf.String(), "connected")
	assert.Contains(t, buf.String(), "10.0.0.1:7000")
	assert.Contains(t, buf.String(), "attempt")
}

func TestNilLoggerDoesNotPanic(t *testing.T) {
	var l *logx.Logger
	assert.NotPanics(t, func() {
		l.Info("ignored", nil)
		l.WithField("k", "v").Error("ignored", nil)
	})
}

func TestNoopDiscardsOutput(t *testing.T) {
	l := logx.Noop()
	assert.NotPanics(t, func() {
		l.Warn("should not appear anywhere observable", nil)
	})
}

func TestSpanLogsErrorOnDone(t *testing.T) {
	var buf bytes.Buffer
	l := newCapturingLogger(&buf)

	span := l.StartSpan("dial", map[string]any{"addr": "10.0.0.1:7000"})
	span.Done(errors.New("boom"))

	assert.Contains(t, buf.String(), "dial start")
	assert.Contains(t, buf.String(), "dial error")
	assert.Contains(t, buf.String(), "boom")
}

func TestSpanLogsDoneWithoutError(t *testing.T) {
	var buf bytes.Buffer
	l := newCapturingLogger(&buf)

	span := l.StartSpan("dial", nil)
	span.Done(nil)

	assert.Contains(t, buf.String(), "dial done")
}
