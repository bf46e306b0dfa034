package gossip

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
)

func TestSplitLevel(t *testing.T) {
	tests := []struct {
		line  string
		level hclog.Level
		msg   string
	}{
		{"[DEBUG] memberlist: stream connection", hclog.Debug, "memberlist: stream connection"},
		{"[WARN] memberlist: refuting suspect", hclog.Warn, "memberlist: refuting suspect"},
		{"[ERR] memberlist: failed", hclog.Error, "memberlist: failed"},
		{"[TRACE] x", hclog.Debug, "x"},
		{"plain line", hclog.Info, "plain line"},
		{"[bogus] line", hclog.Info, "[bogus] line"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			level, msg := splitLevel(tt.line)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.msg, msg)
		})
	}
}

func TestHCLogAdapter_StandardLogger(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	l := newHCLogger(base, "memberlist")

	std := l.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true})
	std.Print("[DEBUG] memberlist: hidden")
	std.Print("[WARN] memberlist: shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, "level=WARN") && strings.Contains(out, "shown"))
	assert.Equal(t, hclog.Warn, l.GetLevel())
	assert.Equal(t, "memberlist.probe", l.Named("probe").Name())
}
