package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	apperrors "github.com/focusflow/host/internal/errors"
)

// candidates are tried in order when no command is configured.
var candidates = []string{"paplay", "aplay", "afplay"}

// ErrNoPlayer is returned when no playback command is on PATH.
var ErrNoPlayer = errors.New("no audio player found on PATH")

// CommandPlayer plays <AssetDir>/<name>.<Ext> through an external command.
type CommandPlayer struct {
	Command  string
	AssetDir string
	Ext      string

	// start is swapped in tests.
	start func(cmd *exec.Cmd) error
}

// NewCommandPlayer resolves command (or the first available candidate) on
// PATH. An empty assetDir means ~/.focusflow/sounds.
func NewCommandPlayer(command, assetDir string) (*CommandPlayer, error) {
	path, err := resolveCommand(command)
	if err != nil {
		return nil, err
	}
	if assetDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		assetDir = filepath.Join(home, ".focusflow", "sounds")
	}

	ext := ".wav"
	if filepath.Base(path) == "afplay" {
		ext = ".mp3"
	}
	return &CommandPlayer{Command: path, AssetDir: assetDir, Ext: ext}, nil
}

func resolveCommand(command string) (string, error) {
	if command != "" {
		path, err := exec.LookPath(command)
		if err != nil {
			return "", fmt.Errorf("audio command %q: %w", command, err)
		}
		return path, nil
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrNoPlayer
}

// Play starts the command and reaps it in the background.
func (p *CommandPlayer) Play(ctx context.Context, s Sound) (time.Duration, error) {
	asset := filepath.Join(p.AssetDir, s.Name+p.Ext)
	if _, err := os.Stat(asset); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeAudioPlayFailed, "missing asset "+asset, err)
	}

	// Playback outlives the caller's context; it is bounded by the sound.
	cmd := exec.Command(p.Command, asset)
	start := p.start
	if start == nil {
		start = (*exec.Cmd).Start
	}
	if err := start(cmd); err != nil {
		return 0, apperrors.Wrap(apperrors.CodeAudioPlayFailed, "start "+p.Command, err)
	}
	if cmd.Process != nil {
		go func() {
			if err := cmd.Wait(); err != nil {
				log.Printf("audio: %s exited: %v", filepath.Base(p.Command), err)
			}
		}()
	}
	return s.Duration, nil
}

// NewPlayer returns a CommandPlayer when one can be resolved and a LogPlayer
// otherwise, so a tab always has something to call.
func NewPlayer(command, assetDir string) Player {
	p, err := NewCommandPlayer(command, assetDir)
	if err != nil {
		log.Printf("audio: %v; sounds will be logged only", err)
		return LogPlayer{}
	}
	return p
}
