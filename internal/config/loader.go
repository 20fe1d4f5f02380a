package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr          string   `json:"addr" yaml:"addr" toml:"addr"`
	LibrariesDir  string   `json:"libraries_dir" yaml:"libraries_dir" toml:"libraries_dir"`
	WorkerBin     string   `json:"worker_bin" yaml:"worker_bin" toml:"worker_bin"`
	WorkerArgs    []string `json:"worker_args" yaml:"worker_args" toml:"worker_args"`
	QuietMs       int      `json:"quiet_ms" yaml:"quiet_ms" toml:"quiet_ms"`
	CacheCapacity int      `json:"cache_capacity" yaml:"cache_capacity" toml:"cache_capacity"`
	JobTimeoutMs  int      `json:"job_timeout_ms" yaml:"job_timeout_ms" toml:"job_timeout_ms"`
	QueueCapacity int      `json:"queue_capacity" yaml:"queue_capacity" toml:"queue_capacity"`
	HardwareLevel string   `json:"hardware_level" yaml:"hardware_level" toml:"hardware_level"`
	PreviewLevel  string   `json:"preview_level" yaml:"preview_level" toml:"preview_level"`
	ExportLevel   string   `json:"export_level" yaml:"export_level" toml:"export_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil { return cfg, err }
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil { return cfg, err }
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil { return cfg, err }
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
