package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/avatarcore/internal/cache"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	db := filepath.Join(dir, "speech.db")
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
log:
  dir: ""
  console: false
cache:
  enabled: true
  path: %s
speech:
  voice: alloy
  openai:
    api_key: sk-secret
`, db)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path, db
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigShow_MasksKey(t *testing.T) {
	path, _ := writeConfig(t)
	out, err := execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "crossfade_duration: 1")
	assert.Contains(t, out, "voice: alloy")
	assert.NotContains(t, out, "sk-secret")
}

func TestCacheCommands(t *testing.T) {
	path, db := writeConfig(t)

	store, err := cache.OpenSQLite(db)
	require.NoError(t, err)
	c, err := cache.New(context.Background(), store, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), "v:alloy:hello", make([]byte, 48)))
	require.NoError(t, c.Set(context.Background(), "v:alloy:bye", []byte{1}))
	require.NoError(t, c.Close())

	out, err := execute(t, "cache", "get", "hello", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "v:alloy:hello: 48 bytes")

	_, err = execute(t, "cache", "get", "missing", "--config", path)
	assert.Error(t, err)

	_, err = execute(t, "cache", "clear", "v:alloy:bye", "--config", path)
	require.NoError(t, err)
	out, err = execute(t, "cache", "list", "--config", path)
	require.NoError(t, err)
	assert.Equal(t, "v:alloy:hello\n", out)

	out, err = execute(t, "cache", "clear-all", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 entries")
}

func TestRun_StepsWithoutAssets(t *testing.T) {
	path, _ := writeConfig(t)
	t.Setenv("OPENAI_API_KEY", "")
	out, err := execute(t, "run", "--frames", "10", "--emotion", "happy", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Happy [idle]")
}

// writeSpeech saves loudness followed by an equal stretch of silence as
// 24 kHz 16-bit PCM.
func writeSpeech(t *testing.T, samples int) string {
	t.Helper()
	freq := 24000.0 * 43 / 1024
	buf := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		v := 0.38 * math.Sin(2*math.Pi*freq*float64(i)/24000)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(v*32767)))
	}
	path := filepath.Join(t.TempDir(), "speech.pcm")
	require.NoError(t, os.WriteFile(path, buf, 0644))
	return path
}

func TestRun_SteppedPCMFollowsTheAudio(t *testing.T) {
	path, _ := writeConfig(t)
	t.Setenv("OPENAI_API_KEY", "")
	pcm := writeSpeech(t, 12*1024)

	// 20 frames cover the loud half only.
	out, err := execute(t, "run", "--frames", "20", "--pcm", pcm, "--config", path)
	require.NoError(t, err)
	assert.NotContains(t, out, "mouth=sil", "the mouth is open while the audio is loud")

	// 120 frames run past the end into silence and the mouth closes again.
	out, err = execute(t, "run", "--frames", "120", "--pcm", pcm, "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "mouth=sil")
}
