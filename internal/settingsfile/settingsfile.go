// Package settingsfile moves timer settings in and out of a YAML file.
package settingsfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/focusflow/host/internal/timer"
)

type yamlSettings struct {
	FocusMinutes int `yaml:"focus_minutes"`
	BreakMinutes int `yaml:"break_minutes"`
}

// Load reads settings from path. Missing fields fall back to defaults; the
// result is validated.
func Load(path string) (timer.Settings, error) {
	settings := timer.DefaultSettings()

	rawData, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings, fmt.Errorf("settings file not found: %s", path)
		}
		return settings, fmt.Errorf("read settings file: %w", err)
	}

	var fileData yamlSettings
	if err := yaml.Unmarshal(rawData, &fileData); err != nil {
		return settings, fmt.Errorf("parse settings yaml: %w", err)
	}

	if fileData.FocusMinutes != 0 {
		settings.FocusDuration = fileData.FocusMinutes
	}
	if fileData.BreakMinutes != 0 {
		settings.BreakDuration = fileData.BreakMinutes
	}
	if err := settings.Validate(); err != nil {
		return timer.DefaultSettings(), err
	}
	return settings, nil
}

// Save writes settings to path, creating the directory if needed.
func Save(path string, settings timer.Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	serialized, err := yaml.Marshal(yamlSettings{
		FocusMinutes: settings.FocusDuration,
		BreakMinutes: settings.BreakDuration,
	})
	if err != nil {
		return fmt.Errorf("marshal settings yaml: %w", err)
	}

	if err := os.WriteFile(path, serialized, 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}
