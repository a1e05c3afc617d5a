// Package config loads the supervisor's on-disk configuration, in the
// TOML format docker/docker's own daemon.json sibling tooling favors
// for this corpus (github.com/pelletier/go-toml).
package config

import (
	"os"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/ctlcore/supervisor/internal/ctlerr"
)

// Config is the supervisor's top-level configuration (spec.md §6's
// process-wide constants, made operator-tunable instead of compiled
// in).
type Config struct {
	Cgroup  CgroupConfig  `toml:"cgroup"`
	Volume  VolumeConfig  `toml:"volume"`
	Journal JournalConfig `toml:"journal"`
}

type CgroupConfig struct {
	TmpfsRoot           string        `toml:"tmpfs_root"`
	DrainPollInterval   time.Duration `toml:"drain_poll_interval"`
	DrainSoftAttempts   int           `toml:"drain_soft_attempts"`
	DrainDeadline       time.Duration `toml:"drain_deadline"`
	FreezerPollInterval time.Duration `toml:"freezer_poll_interval"`
	// SystemdUnit is this process's own unit name, used to resolve the
	// delegated "name=systemd" controller root via systemd's own
	// bookkeeping instead of a raw tmpfs mount path. Empty disables
	// delegation and falls back to the raw mount table.
	SystemdUnit string `toml:"systemd_unit"`
}

type VolumeConfig struct {
	DefaultPlace string `toml:"default_place"`
}

type JournalConfig struct {
	Path string `toml:"path"`
}

// Default returns the configuration used when no file is present,
// mirroring the constants spec.md §6 fixes for a from-scratch run.
func Default() Config {
	return Config{
		Cgroup: CgroupConfig{
			TmpfsRoot:           "/sys/fs/cgroup",
			DrainPollInterval:   50 * time.Millisecond,
			DrainSoftAttempts:   20,
			DrainDeadline:       10 * time.Second,
			FreezerPollInterval: 10 * time.Millisecond,
		},
		Volume: VolumeConfig{
			DefaultPlace: "/place",
		},
		Journal: JournalConfig{
			Path: "/var/lib/supervisor/volumes.db",
		},
	}
}

// Load reads and parses a TOML config file at path, filling any unset
// field from Default().
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := readFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, ctlerr.Wrap(ctlerr.InvalidValue, err, "parse config %s", path)
	}
	return cfg, nil
}

func readFile(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, ctlerr.Wrap(ctlerr.NotFound, err, "read config %s", path)
	}
	return b, nil
}
