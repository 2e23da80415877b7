package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_WritesStructuredEntries(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "gameserver", zerolog.DebugLevel)

	l.Info("session created", Field{Key: "session_id", Value: "abc"})

	out := buf.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"service":"gameserver"`)
	assert.Contains(t, out, `"session_id":"abc"`)
	assert.Contains(t, out, `"message":"session created"`)
}

func TestNew_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "gameserver", zerolog.ErrorLevel)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("hidden")
	assert.Empty(t, buf.String())

	l.Error("visible")
	assert.Contains(t, buf.String(), `"message":"visible"`)
}

func TestWith_DerivedFieldsPersist(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "gameserver", zerolog.InfoLevel)

	scoped := l.With(Field{Key: "session_id", Value: "abc"})
	scoped.Info("one")
	scoped.Warn("two")

	out := buf.String()
	assert.Equal(t, 2, bytes.Count([]byte(out), []byte(`"session_id":"abc"`)))

	// The parent logger is unchanged.
	buf.Reset()
	l.Info("plain")
	assert.NotContains(t, buf.String(), "session_id")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNop_DiscardsEverything(t *testing.T) {
	l := Nop()
	l.Debug("x")
	l.Info("x", Field{Key: "k", Value: "v"})
	l.Warn("x")
	l.Error("x")
	l.With(Field{Key: "k", Value: "v"}).Info("x")
}
