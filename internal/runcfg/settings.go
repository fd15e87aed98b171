package runcfg

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/google/uuid"

	"github.com/domset-tools/stride-runner/internal/server"
)

// Settings is the persisted content of config.json. It seeds CLI flag
// defaults; flags always win.
type Settings struct {
	ServerURL    string     `json:"server_url"`
	SolverBin    string     `json:"solver_bin"`
	RunLogDir    string     `json:"run_log_dir"`
	SolverUUID   *uuid.UUID `json:"solver_uuid"`
	Timeout      uint       `json:"timeout"`
	Grace        uint       `json:"grace"`
	ParallelJobs int        `json:"parallel_jobs"`
}

// DefaultSettings returns the values written by `stride-runner init`.
func DefaultSettings() Settings {
	return Settings{
		ServerURL:    server.DefaultBaseURL,
		RunLogDir:    DefaultLogDir,
		Timeout:      300,
		Grace:        5,
		ParallelJobs: runtime.NumCPU(),
	}
}

// LoadSettings reads config.json from path. A missing file yields the
// defaults, so a fresh checkout works without `init`.
func LoadSettings(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read config: %w", err)
	}

	s := DefaultSettings()
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return s, nil
}

// Store writes the settings pretty-printed to path.
func (s Settings) Store(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
