// Command supervisord is the process-wide entrypoint wiring the cgroup
// registry, volume manager, and journal together, in the style of
// docker/docker/cmd/dockerd's flag-parse-then-serve main.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sys/unix"

	"github.com/ctlcore/supervisor/cgroups"
	"github.com/ctlcore/supervisor/cgroups/freezer"
	"github.com/ctlcore/supervisor/cgroups/systemd"
	"github.com/ctlcore/supervisor/internal/config"
	"github.com/ctlcore/supervisor/volume"
	"github.com/ctlcore/supervisor/volume/journal"
)

var log = logrus.WithField("component", "supervisord")

func main() {
	var configPath string
	var debug bool
	flag.StringVar(&configPath, "config", "", "path to supervisord.toml")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	if debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
		cfg = loaded
	}

	cgroups.DefaultDrainConfig = cgroups.DrainConfig{
		PollInterval: cfg.Cgroup.DrainPollInterval,
		SoftAttempts: cfg.Cgroup.DrainSoftAttempts,
		Deadline:     cfg.Cgroup.DrainDeadline,
	}
	freezer.PollInterval = cfg.Cgroup.FreezerPollInterval

	registry := cgroups.NewRegistry(cfg.Cgroup.TmpfsRoot)
	subsystems := cgroups.NewSubsystemRegistry()
	snapshotter, err := cgroups.NewSnapshotter(registry, subsystems)
	if err != nil {
		log.WithError(err).Fatal("failed to construct cgroup snapshotter")
	}
	if systemd.Available() && cfg.Cgroup.SystemdUnit != "" {
		registry.UseSystemdUnit(cfg.Cgroup.SystemdUnit)
		log.WithField("unit", cfg.Cgroup.SystemdUnit).Debug("resolving name=systemd controller root via systemd delegation")
	}
	if _, err := snapshotter.Snapshot(); err != nil {
		log.WithError(err).Warn("initial cgroup snapshot failed")
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		log.WithError(err).Fatal("failed to open volume journal")
	}
	defer j.Close()

	resolver := newContainerRegistry()
	mgr := volume.NewManager(volume.Config{
		Journal:      j,
		Resolver:     resolver,
		Backends:     volume.DefaultBackends(),
		DefaultPlace: cfg.Volume.DefaultPlace,
	})
	mgr.SeedPlaceFree(cfg.Volume.DefaultPlace, statfsFree(cfg.Volume.DefaultPlace))
	mgr.RestoreAll()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	log.Info("supervisord ready")
	sig := <-sigCh
	log.WithField("signal", sig).Info("shutting down")
	mgr.DeleteAll()
}

func statfsFree(path string) int64 {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0
	}
	return int64(st.Bavail) * int64(st.Bsize)
}

// containerRegistry is the minimal volume.ContainerResolver
// implementation: a map of container name to its mount-namespace root,
// maintained by whatever higher-level task-control surface eventually
// calls RegisterContainer/Forget. It exists in this entrypoint because
// the spec's process model stops at the Task Launcher Boundary
// (launcher.Task) and does not itself define a full container runtime.
type containerRegistry struct {
	mu   sync.Mutex
	root map[string]string
}

func newContainerRegistry() *containerRegistry {
	return &containerRegistry{root: make(map[string]string)}
}

func (c *containerRegistry) RegisterContainer(name, mountNSRoot string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root[name] = mountNSRoot
}

func (c *containerRegistry) Forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.root, name)
}

func (c *containerRegistry) IsRunning(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.root[name]
	return ok
}

func (c *containerRegistry) ResolveTarget(container, target string) (string, error) {
	c.mu.Lock()
	root, ok := c.root[container]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("container %s is not running", container)
	}
	return root + target, nil
}
