//go:build !windows

package renderer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeManim writes an executable shell script standing in for the manim CLI.
func fakeManim(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	p := filepath.Join(t.TempDir(), "manim")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

func TestProcess_RenderSuccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	bin := fakeManim(t, `
for a in "$@"; do
  case "$a" in --media_dir=*) media="${a#--media_dir=}";; esac
done
mkdir -p "$media/videos/animation/480p15"
printf 'mp4' > "$media/videos/animation/480p15/MainScene.mp4"
echo "File ready"
`)
	r, err := New(Options{Binary: bin, Timeout: 10 * time.Second}, nil, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	res, err := r.Render(context.Background(), Job{Source: "from manim import *", Dir: dir})
	require.NoError(t, err)
	require.Nil(t, res.Failure)
	assert.Equal(t, filepath.Join(dir, "media", "videos", "animation", "480p15", "MainScene.mp4"), res.VideoPath)
	assert.Contains(t, res.Stdout, "File ready")
}

func TestProcess_RenderFailureCapturesStderr(t *testing.T) {
	defer goleak.VerifyNone(t)

	bin := fakeManim(t, `
echo "NameError: name 'TexMobject' is not defined" >&2
exit 1
`)
	r, err := New(Options{Binary: bin, Timeout: 10 * time.Second}, nil, nil)
	require.NoError(t, err)

	res, err := r.Render(context.Background(), Job{Source: "x", Dir: t.TempDir()})
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, KindSyntax, res.Failure.Kind)
	assert.Equal(t, 1, res.ExitStatus)
	assert.Contains(t, res.Stderr, "TexMobject")
}

func TestProcess_TimeoutKillsProcessGroup(t *testing.T) {
	defer goleak.VerifyNone(t)

	// The background sleep inherits stdout; unless the whole group is killed
	// the pipe stays open until WaitDelay expires.
	bin := fakeManim(t, `
sleep 30 &
sleep 30
`)
	r, err := New(Options{Binary: bin, Timeout: 200 * time.Millisecond}, ProcessExecutor{WaitDelay: 20 * time.Second}, nil)
	require.NoError(t, err)

	start := time.Now()
	res, err := r.Render(context.Background(), Job{Source: "x", Dir: t.TempDir()})
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, KindTimeout, res.Failure.Kind)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestProcess_CallerCancellationKillsChild(t *testing.T) {
	defer goleak.VerifyNone(t)

	bin := fakeManim(t, "sleep 30\n")
	r, err := New(Options{Binary: bin, Timeout: time.Minute}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	_, err = r.Render(ctx, Job{Source: "x", Dir: t.TempDir()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestProcess_MissingBinary(t *testing.T) {
	r, err := New(Options{Binary: filepath.Join(t.TempDir(), "no-such-manim"), Timeout: time.Second}, nil, nil)
	require.NoError(t, err)

	res, err := r.Render(context.Background(), Job{Source: "x", Dir: t.TempDir()})
	require.NoError(t, err)
	require.NotNil(t, res.Failure)
	assert.Equal(t, KindUnknown, res.Failure.Kind)
}
