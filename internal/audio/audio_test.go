package audio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFFmpeg writes a shell script that stands in for ffmpeg. The script
// receives the output path as its last argument.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor last; do :; done\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestStore(t *testing.T) {
	dir := t.TempDir()

	f, err := Store(dir, "Recording.M4A", strings.NewReader("audio-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "Recording.M4A", f.Filename)
	assert.Equal(t, dir, filepath.Dir(f.Path))
	assert.Equal(t, ".m4a", filepath.Ext(f.Path))

	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Equal(t, "audio-bytes", string(data))
}

func TestStoreUniquePaths(t *testing.T) {
	dir := t.TempDir()

	a, err := Store(dir, "same.wav", strings.NewReader("a"))
	require.NoError(t, err)
	b, err := Store(dir, "same.wav", strings.NewReader("b"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Path, b.Path)
}

func TestStoreMissingDir(t *testing.T) {
	_, err := Store(filepath.Join(t.TempDir(), "nope"), "a.wav", strings.NewReader("a"))
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	f, err := Store(t.TempDir(), "a.wav", strings.NewReader("a"))
	require.NoError(t, err)

	require.NoError(t, Remove(f))
	assert.NoFileExists(t, f.Path)

	// already removed and zero-value files are fine
	assert.NoError(t, Remove(f))
	assert.NoError(t, Remove(File{}))
}

func TestNewFFmpeg(t *testing.T) {
	tc, err := NewFFmpeg(FFmpegConfig{})
	require.NoError(t, err)
	assert.Equal(t, "mp3", tc.Format())

	tc, err = NewFFmpeg(FFmpegConfig{Format: ".WAV"})
	require.NoError(t, err)
	assert.Equal(t, "wav", tc.Format())

	_, err = NewFFmpeg(FFmpegConfig{Format: "xyz"})
	assert.ErrorContains(t, err, "unsupported transcode format")
}

func TestFFmpegTranscode(t *testing.T) {
	bin := fakeFFmpeg(t, `printf 'normalized' > "$last"`)
	tc, err := NewFFmpeg(FFmpegConfig{BinPath: bin, Format: "mp3"})
	require.NoError(t, err)

	in, err := Store(t.TempDir(), "voice.mp3", strings.NewReader("raw"))
	require.NoError(t, err)

	out, err := tc.Transcode(context.Background(), in)
	require.NoError(t, err)

	assert.NotEqual(t, in.Path, out.Path)
	assert.True(t, strings.HasSuffix(out.Path, "_normalized.mp3"))
	assert.Equal(t, "voice.mp3", out.Filename)

	data, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, "normalized", string(data))
}

func TestFFmpegTranscodeFailureRemovesPartialOutput(t *testing.T) {
	bin := fakeFFmpeg(t, `printf 'partial' > "$last"
echo "Invalid data found when processing input" >&2
exit 1`)
	tc, err := NewFFmpeg(FFmpegConfig{BinPath: bin})
	require.NoError(t, err)

	in, err := Store(t.TempDir(), "broken.ogg", strings.NewReader("raw"))
	require.NoError(t, err)

	_, err = tc.Transcode(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid data found")

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(in.Path), "*_normalized.*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFFmpegTranscodeCancelled(t *testing.T) {
	bin := fakeFFmpeg(t, `printf 'partial' > "$last"
exec sleep 10`)
	tc, err := NewFFmpeg(FFmpegConfig{BinPath: bin})
	require.NoError(t, err)

	in, err := Store(t.TempDir(), "long.wav", strings.NewReader("raw"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = tc.Transcode(ctx, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(in.Path), "*_normalized.*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFFmpegMissingBinary(t *testing.T) {
	tc, err := NewFFmpeg(FFmpegConfig{BinPath: filepath.Join(t.TempDir(), "missing-ffmpeg")})
	require.NoError(t, err)

	in, err := Store(t.TempDir(), "a.wav", strings.NewReader("raw"))
	require.NoError(t, err)

	_, err = tc.Transcode(context.Background(), in)
	assert.ErrorContains(t, err, "ffmpeg failed")
}
