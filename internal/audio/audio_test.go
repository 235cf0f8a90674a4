package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/focusflow/host/internal/errors"
)

func TestLookup(t *testing.T) {
	s, err := Lookup("time-for-break")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if s != TimeForBreak {
		t.Errorf("Lookup = %+v, want %+v", s, TimeForBreak)
	}

	if _, err := Lookup("airhorn"); err == nil {
		t.Error("Lookup of unknown sound should fail")
	}
}

func TestLogPlayer(t *testing.T) {
	d, err := LogPlayer{Prefix: "tab-a "}.Play(context.Background(), TimeForFocus)
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if d != TimeForFocus.Duration {
		t.Errorf("duration = %v, want %v", d, TimeForFocus.Duration)
	}
}

func TestResolveCommand_Missing(t *testing.T) {
	if _, err := resolveCommand("definitely-not-a-real-player-binary"); err == nil {
		t.Error("resolveCommand should fail for a missing binary")
	}
}

func TestCommandPlayer_Play(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "time-for-break.wav"), []byte("RIFF"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	var started []string
	p := &CommandPlayer{
		Command:  "/usr/bin/paplay",
		AssetDir: dir,
		Ext:      ".wav",
		start: func(cmd *exec.Cmd) error {
			started = append(started, cmd.Args...)
			return nil
		},
	}

	d, err := p.Play(context.Background(), TimeForBreak)
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if d != 3*time.Second {
		t.Errorf("duration = %v, want 3s", d)
	}
	want := []string{"/usr/bin/paplay", filepath.Join(dir, "time-for-break.wav")}
	if len(started) != 2 || started[0] != want[0] || started[1] != want[1] {
		t.Errorf("started %v, want %v", started, want)
	}
}

func TestCommandPlayer_MissingAsset(t *testing.T) {
	p := &CommandPlayer{Command: "/usr/bin/paplay", AssetDir: t.TempDir(), Ext: ".wav"}

	_, err := p.Play(context.Background(), TimeForFocus)
	if !apperrors.IsCode(err, apperrors.CodeAudioPlayFailed) {
		t.Errorf("Play = %v, want audio.play_failed", err)
	}
}

func TestCommandPlayer_StartFails(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "time-for-focus.wav"), []byte("RIFF"), 0644)

	p := &CommandPlayer{
		Command:  "/usr/bin/paplay",
		AssetDir: dir,
		Ext:      ".wav",
		start:    func(*exec.Cmd) error { return errors.New("exec format error") },
	}

	if _, err := p.Play(context.Background(), TimeForFocus); !apperrors.IsCode(err, apperrors.CodeAudioPlayFailed) {
		t.Errorf("Play = %v, want audio.play_failed", err)
	}
}

func TestNewPlayer_FallsBackToLog(t *testing.T) {
	p := NewPlayer("definitely-not-a-real-player-binary", "")
	if _, ok := p.(LogPlayer); !ok {
		t.Errorf("NewPlayer returned %T, want LogPlayer", p)
	}
}
