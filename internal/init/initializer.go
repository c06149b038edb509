// Package init sets up a binsleuth workspace: the .sleuth/ directory
// structure, a default config, and the trace database location. Running it
// on an existing workspace is safe and leaves user settings untouched.
package init

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"binsleuth/internal/config"
)

// InitConfig holds configuration for workspace initialization.
type InitConfig struct {
	Workspace string
	Force     bool // Overwrite an existing config.yaml
}

// DefaultInitConfig returns sensible defaults.
func DefaultInitConfig(workspace string) InitConfig {
	if workspace == "" {
		workspace, _ = os.Getwd()
	}
	return InitConfig{Workspace: workspace}
}

// InitResult reports what initialization created.
type InitResult struct {
	Workspace     string
	ConfigPath    string
	CreatedConfig bool
	CreatedDirs   []string
	Duration      time.Duration
}

// Initializer creates the workspace layout.
type Initializer struct {
	config InitConfig
}

// NewInitializer creates an initializer.
func NewInitializer(cfg InitConfig) *Initializer {
	return &Initializer{config: cfg}
}

// Initialize creates .sleuth/ with logs/ and the default config. Existing
// files are preserved unless Force is set.
func (i *Initializer) Initialize() (*InitResult, error) {
	started := time.Now()
	ws := i.config.Workspace
	if ws == "" {
		return nil, fmt.Errorf("workspace path required")
	}

	result := &InitResult{Workspace: ws}

	for _, dir := range []string{
		filepath.Join(ws, ".sleuth"),
		filepath.Join(ws, ".sleuth", "logs"),
	} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", dir, err)
			}
			result.CreatedDirs = append(result.CreatedDirs, dir)
		}
	}

	cfgPath := filepath.Join(ws, ".sleuth", "config.yaml")
	result.ConfigPath = cfgPath
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) || i.config.Force {
		if err := config.DefaultConfig().Save(cfgPath); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		result.CreatedConfig = true
	}

	result.Duration = time.Since(started)
	return result, nil
}
