package logging

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_HistoryCapturesComponents(t *testing.T) {
	l, err := New(Config{Level: "debug", MaxHistory: 3})
	require.NoError(t, err)
	defer l.Close()

	log := l.Component("animation")
	log.Info().Str("name", "happy").Msg("Clip loaded")
	log.Warn().Err(errors.New("boom")).Msg("Clip load failed")

	h := l.History(0)
	require.Len(t, h, 3, "startup line plus two")
	last := h[2]
	assert.Equal(t, "warn", last.Level)
	assert.Equal(t, "animation", last.Component)
	assert.Equal(t, "Clip load failed", last.Message)
	assert.Equal(t, "error=boom", last.Data)
	assert.Equal(t, "name=happy", h[1].Data)

	for i := 0; i < 5; i++ {
		log.Info().Msg("spam")
	}
	assert.Len(t, l.History(0), 3)
	assert.Len(t, l.History(1), 1)
}

func TestLogger_LevelAndFile(t *testing.T) {
	dir := t.TempDir()
	var raw bytes.Buffer
	l, err := New(Config{Dir: dir, Level: "warn"}, &raw)
	require.NoError(t, err)

	tickLog := l.Component("tick")
	tickLog.Info().Msg("hidden")
	tickLog.Error().Msg("shown")
	require.NoError(t, l.Close())

	assert.NotContains(t, raw.String(), "hidden")
	assert.Contains(t, raw.String(), "shown")

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"tick"`)
	assert.Contains(t, string(data), `"app":"avatarcore"`)
}

func TestLogger_OnLog(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)

	got := make(chan LogEntry, 1)
	l.SetOnLog(func(e LogEntry) { got <- e })
	speakerLog := l.Component("speaker")
	speakerLog.Info().Msg("Speech started")

	select {
	case e := <-got:
		assert.Equal(t, "speaker", e.Component)
	case <-time.After(time.Second):
		t.Fatal("no streamed entry")
	}
}
