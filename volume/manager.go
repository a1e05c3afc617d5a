package volume

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/moby/locker"
	"github.com/sirupsen/logrus"

	"github.com/ctlcore/supervisor/internal/ctlerr"
	imount "github.com/ctlcore/supervisor/internal/mount"
	"github.com/ctlcore/supervisor/volume/journal"
)

var log = logrus.WithField("component", "volume")

// ContainerResolver is the Task Launcher Boundary surface the Manager
// consumes to decide whether a link target should be bound immediately
// (spec.md §2.9, §4.5 "link"). It is satisfied by whatever owns
// container/namespace lifecycle; this module only calls it, it does not
// implement it.
type ContainerResolver interface {
	// IsRunning reports whether container currently has a live mount
	// namespace to bind into.
	IsRunning(container string) bool
	// ResolveTarget maps target, a path inside container's mount
	// namespace, to the host path the bind mount should actually land
	// on.
	ResolveTarget(container, target string) (string, error)
}

// Manager is the VolumeManager of spec.md §9: a single value
// encapsulating the process-wide mutable state (volume registry,
// VolumeLinks index, the volumes mutex, and the journal handle) that the
// original module-scope globals represented, created once at startup and
// passed explicitly (spec.md §9 "Process-wide mutable state").
type Manager struct {
	mu sync.Mutex // the volumes lock (spec.md §5)

	journal   *journal.Journal
	resolver  ContainerResolver
	locker    *locker.Locker
	backends  map[BackendType]Backend

	byPath  map[string]*Volume // Volume Registry, keyed by host path (spec.md §2.8)
	byID    map[string]*Volume
	byLink  map[string]*Link // VolumeLinks, keyed by host_target (spec.md §3)
	places  map[string]*placeBudget

	defaultPlace string
}

// Config configures a new Manager.
type Config struct {
	Journal       *journal.Journal
	Resolver      ContainerResolver
	Backends      map[BackendType]Backend
	DefaultPlace  string
}

// NewManager constructs a Manager. Initialization is a call, teardown
// runs DeleteAll, per spec.md §9.
func NewManager(cfg Config) *Manager {
	return &Manager{
		journal:      cfg.Journal,
		resolver:     cfg.Resolver,
		backends:     cfg.Backends,
		locker:       locker.New(),
		byPath:       make(map[string]*Volume),
		byID:         make(map[string]*Volume),
		byLink:       make(map[string]*Link),
		places:       make(map[string]*placeBudget),
		defaultPlace: cfg.DefaultPlace,
	}
}

func (m *Manager) placeBudgetLocked(key string) *placeBudget {
	b, ok := m.places[key]
	if !ok {
		b = &placeBudget{}
		m.places[key] = b
	}
	return b
}

// SeedPlaceFree sets the known total free space for a place, used at
// startup (normally from a statfs(2) call the caller performs) and
// whenever the underlying filesystem's free space should be
// re-baselined.
func (m *Manager) SeedPlaceFree(place string, totalFree int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.placeBudgetLocked(place).totalFree = totalFree
}

// Create validates spec, assigns a new id, resolves place/path,
// instantiates the backend, and drives the volume from INITIAL through
// BUILDING to READY (spec.md §4.5).
func (m *Manager) Create(spec *CreateSpec) (*Volume, error) {
	backend, ok := m.backends[spec.Backend]
	if !ok {
		return nil, ctlerr.New(ctlerr.InvalidValue, "no backend registered for %q", spec.Backend)
	}

	v := &Volume{
		ID:             uuid.NewString(),
		BackendType:    spec.Backend,
		Storage:        spec.Storage,
		Layers:         spec.Layers,
		ReadOnly:       spec.ReadOnly,
		SpaceLimit:     spec.SpaceLimit,
		InodeLimit:     spec.InodeLimit,
		SpaceGuarantee: spec.SpaceGuarantee,
		InodeGuarantee: spec.InodeGuarantee,
		Permissions:    spec.Permissions,
		OwnerContainer: spec.OwnerContainer,
		Labels:         spec.Labels,
		Place:          spec.Place,
		PrivateBlob:    spec.Private,
		Nested:         map[string]*Volume{},
		backend:        backend,
		state:          StateInitial,
	}
	if v.Place == "" {
		v.Place = m.defaultPlace
	}

	m.mu.Lock()
	if spec.Path != "" {
		if _, exists := m.byPath[spec.Path]; exists {
			m.mu.Unlock()
			return nil, ctlerr.New(ctlerr.VolumeAlreadyExists, "volume already exists at %s", spec.Path)
		}
		v.Path = spec.Path
	} else {
		v.Path = filepath.Join(v.Place, "volumes", v.ID)
		v.IsAutoPath = true
	}
	if v.Storage == "" {
		v.StoragePath = filepath.Join(v.Place, "volumes", v.ID, "storage")
	} else if filepath.IsAbs(v.Storage) {
		v.StoragePath = v.Storage
	} else {
		v.StoragePath = filepath.Join(v.Place, v.Storage)
	}
	m.mu.Unlock()

	if err := m.CheckDependencies(v); err != nil {
		return nil, ctlerr.Op("check-dependencies", v.ID, err)
	}

	if err := backend.Configure(v); err != nil {
		return nil, ctlerr.Op("configure", v.ID, err)
	}
	m.transition(v, StateConfigured)
	if err := m.journalPut(v); err != nil {
		return nil, err
	}

	m.transition(v, StateBuilding)
	if err := m.journalPut(v); err != nil {
		return nil, err
	}

	budget := m.placeBudgetLocked2(backend.ClaimPlace(v))
	m.mu.Lock()
	if err := budget.claim(v.SpaceLimit, v.SpaceGuarantee); err != nil {
		m.mu.Unlock()
		m.transition(v, StateUnready)
		_ = m.journalPut(v)
		return nil, err
	}
	v.ClaimedSpace = v.SpaceLimit
	m.mu.Unlock()

	if err := backend.Build(v); err != nil {
		m.mu.Lock()
		budget.release(v.ClaimedSpace, v.SpaceGuarantee)
		m.mu.Unlock()
		m.transition(v, StateUnready)
		_ = m.journalPut(v)
		return nil, ctlerr.Op("build", v.ID, err)
	}

	m.transition(v, StateReady)
	m.mu.Lock()
	m.byPath[v.Path] = v
	m.byID[v.ID] = v
	m.registerNestingLocked(v)
	m.mu.Unlock()

	for _, ls := range spec.Containers {
		if _, err := m.Link(v, ls.Container, ls.Target, ls.ReadOnly, ls.Required); err != nil {
			log.WithError(err).WithField("volume", v.ID).Warn("failed to apply initial link from create spec")
		}
	}

	if err := m.journalPut(v); err != nil {
		return nil, err
	}
	return v, nil
}

func (m *Manager) placeBudgetLocked2(key string) *placeBudget {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placeBudgetLocked(key)
}

// transition moves v to next, holding v's lock across the state change
// (spec.md §5: "the lock is held across the transition and its journal
// write" — the journal write itself happens in the caller, immediately
// after, still within the same logical step).
func (m *Manager) transition(v *Volume, next State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.state.CanTransition(next) && v.state != next {
		log.WithField("volume", v.ID).Warnf("non-monotonic transition %s -> %s allowed only for recovery paths", v.state, next)
	}
	v.setState(next)
}

func (m *Manager) journalPut(v *Volume) error {
	v.mu.Lock()
	rec := toRecord(v)
	v.mu.Unlock()
	if err := m.journal.Put(v.ID, rec); err != nil {
		return ctlerr.Op("journal", v.ID, err)
	}
	return nil
}

// Link appends a VolumeLink; if target is non-empty and the container
// is running, it immediately binds into the container's mount
// namespace (spec.md §4.5).
func (m *Manager) Link(v *Volume, container, target string, readOnly, required bool) (*Link, error) {
	m.locker.Lock(container)
	defer m.locker.Unlock(container)

	l := &Link{Volume: v, Container: container, Target: target, ReadOnly: readOnly, Required: required}

	if target != "" && m.resolver != nil && m.resolver.IsRunning(container) {
		hostTarget, err := m.resolver.ResolveTarget(container, target)
		if err != nil {
			return nil, ctlerr.Op("link", v.ID, err)
		}
		desc := imount.NewDescriptor(v.Path, hostTarget, "none", 0, "bind")
		if readOnly {
			desc.OptionFlags["ro"] = struct{}{}
		}
		if err := imount.Mount(desc); err != nil {
			if required {
				return nil, ctlerr.Wrap(ctlerr.Unknown, err, "bind volume %s into %s at %s", v.ID, container, target)
			}
			log.WithError(err).WithField("volume", v.ID).Warn("non-required link bind failed")
		} else {
			l.HostTarget = hostTarget
		}
	}

	v.mu.Lock()
	v.Links = append(v.Links, l)
	v.mu.Unlock()

	m.mu.Lock()
	if l.HostTarget != "" {
		m.byLink[l.HostTarget] = l
	}
	m.mu.Unlock()

	if err := m.journalPut(v); err != nil {
		return nil, err
	}
	return l, nil
}

// Unlink removes the matching link(s); an empty target removes every
// link to container. If the volume retains at least one link it stays
// READY; otherwise it becomes UNLINKED and is enqueued for destruction.
func (m *Manager) Unlink(v *Volume, container, target string, strict bool) error {
	m.locker.Lock(container)
	defer m.locker.Unlock(container)

	v.mu.Lock()
	var kept []*Link
	var removed []*Link
	for _, l := range v.Links {
		if l.Container == container && (target == "" || l.Target == target) {
			removed = append(removed, l)
			continue
		}
		kept = append(kept, l)
	}
	if len(removed) == 0 && strict {
		v.mu.Unlock()
		return ctlerr.New(ctlerr.NotFound, "no link to %s at %q on volume %s", container, target, v.ID)
	}
	v.Links = kept
	remaining := len(kept)
	v.mu.Unlock()

	m.mu.Lock()
	for _, l := range removed {
		if l.HostTarget != "" {
			delete(m.byLink, l.HostTarget)
		}
	}
	m.mu.Unlock()

	for _, l := range removed {
		if l.HostTarget != "" {
			if err := imount.UnmountIfMounted(l.HostTarget); err != nil {
				log.WithError(err).WithField("volume", v.ID).Warn("failed to unmount link on unlink")
			}
		}
	}

	if remaining == 0 {
		m.transition(v, StateUnlinked)
		m.transition(v, StateToDestroy)
	}
	return m.journalPut(v)
}

// DeleteOne drives v from UNLINKED through TO_DESTROY/DESTROYING to
// DESTROYED, calling the backend's Delete and removing the journal
// entry. A volume holding a required link, or with non-empty Nested, is
// refused with Busy (spec.md §3, §5).
func (m *Manager) DeleteOne(v *Volume) error {
	if v.HasRequiredLink() {
		return ctlerr.New(ctlerr.Busy, "volume %s has a required link", v.ID)
	}
	v.mu.Lock()
	nestedCount := len(v.Nested)
	state := v.state
	v.mu.Unlock()
	if nestedCount > 0 {
		return ctlerr.New(ctlerr.Busy, "volume %s has %d nested volumes", v.ID, nestedCount)
	}

	if state == StateDestroyed {
		return nil
	}
	if state == StateReady && v.LinkCount() == 0 {
		m.transition(v, StateUnlinked)
		m.transition(v, StateToDestroy)
	} else if state != StateToDestroy && state != StateUnready {
		return ctlerr.New(ctlerr.VolumeNotReady, "volume %s is in state %s, not destroyable", v.ID, state)
	} else if state == StateUnready {
		m.transition(v, StateToDestroy)
	}

	m.transition(v, StateDestroying)
	if err := m.journalPut(v); err != nil {
		return err
	}

	if err := v.backend.Delete(v); err != nil {
		return ctlerr.Op("delete", v.ID, err)
	}

	m.mu.Lock()
	budget := m.placeBudgetLocked(v.backend.ClaimPlace(v))
	budget.release(v.ClaimedSpace, v.SpaceGuarantee)
	m.unregisterNestingLocked(v)
	delete(m.byPath, v.Path)
	delete(m.byID, v.ID)
	m.mu.Unlock()

	m.transition(v, StateDestroyed)
	return m.journal.Delete(v.ID)
}

// ResolveLink looks up a link by its container-namespace-resolved host
// target.
func (m *Manager) ResolveLink(hostTarget string) (*Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byLink[hostTarget]
	return l, ok
}

// ResolveOrigin looks up the volume owning innerPath, a path rooted
// inside a volume's own storage, by prefix match against every
// registered volume's Path.
func (m *Manager) ResolveOrigin(innerPath string) (*Volume, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Volume
	var bestRel string
	for p, v := range m.byPath {
		rel, err := filepath.Rel(p, innerPath)
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			continue
		}
		if best == nil || len(p) > len(best.Path) {
			best = v
			bestRel = rel
		}
	}
	if best == nil {
		return nil, "", false
	}
	return best, bestRel, true
}

// TuneSpec carries the mutable subset of a volume's attributes that
// Tune is permitted to change (spec.md §4.5: "mutates only the
// limits/labels/private fields").
type TuneSpec struct {
	SpaceLimit     *int64
	InodeLimit     *int64
	SpaceGuarantee *int64
	InodeGuarantee *int64
	Labels         map[string]string
	Private        *string
}

// Tune mutates only the limits/labels/private fields of v; if the
// backend supports resize and limits changed, it delegates to
// Backend.Resize.
func (m *Manager) Tune(v *Volume, cfg TuneSpec) error {
	m.transition(v, StateTuning)

	v.mu.Lock()
	limitsChanged := false
	if cfg.SpaceLimit != nil && *cfg.SpaceLimit != v.SpaceLimit {
		v.SpaceLimit = *cfg.SpaceLimit
		limitsChanged = true
	}
	if cfg.InodeLimit != nil && *cfg.InodeLimit != v.InodeLimit {
		v.InodeLimit = *cfg.InodeLimit
		limitsChanged = true
	}
	if cfg.SpaceGuarantee != nil {
		v.SpaceGuarantee = *cfg.SpaceGuarantee
	}
	if cfg.InodeGuarantee != nil {
		v.InodeGuarantee = *cfg.InodeGuarantee
	}
	if cfg.Labels != nil {
		v.Labels = cfg.Labels
	}
	if cfg.Private != nil {
		v.PrivateBlob = *cfg.Private
	}
	v.mu.Unlock()

	var err error
	if limitsChanged {
		err = v.backend.Resize(v, v.SpaceLimit, v.InodeLimit)
		if err != nil && !ctlerr.IsNoSpace(err) {
			// NotSupported for a resize-incapable backend is not fatal to
			// Tune: the limit fields are still updated bookkeeping even
			// if the backend can't enforce them live.
			if !ctlerr.Is(err, ctlerr.NotSupported) {
				m.transition(v, StateReady)
				return ctlerr.Op("resize", v.ID, err)
			}
			err = nil
		}
	}

	m.transition(v, StateReady)
	if jerr := m.journalPut(v); jerr != nil {
		return jerr
	}
	return err
}

// CheckDependencies verifies all of v's lower layers exist (as
// registered volumes or storage, matched by path or id) and that every
// volume v is nested under (its ancestors by path) exists and is READY
// (spec.md §4.5: "verifies nested parents exist and are READY").
func (m *Manager) CheckDependencies(v *Volume) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := map[string]bool{}
	for _, layer := range v.Layers {
		if seen[layer] {
			return ctlerr.New(ctlerr.InvalidValue, "duplicate layer %q", layer)
		}
		seen[layer] = true
	}
	for _, layer := range v.Layers {
		if _, ok := m.byID[layer]; !ok {
			if _, ok := m.byPath[layer]; !ok {
				return ctlerr.New(ctlerr.LayerNotFound, "layer %q not found", layer)
			}
		}
	}

	for path, ancestor := range m.byPath {
		if ancestor == v || !isStrictDescendant(v.Path, path) {
			continue
		}
		if ancestor.State() != StateReady {
			return ctlerr.New(ctlerr.VolumeNotReady, "nested parent %q not ready", path)
		}
	}
	return nil
}

// isStrictDescendant reports whether child is rooted strictly under
// parent (child != parent).
func isStrictDescendant(child, parent string) bool {
	if parent == "" || child == parent {
		return false
	}
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return false
	}
	return true
}

// registerNestingLocked recomputes v's place in the ancestor/descendant
// path-prefix graph against every other registered volume, populating
// `Nested` on whichever side of each pair is the ancestor (spec.md §3:
// "Volume.nested is the transitive set of volumes whose path is a
// strict descendant of this one's path; it is maintained on
// registration"). Callers must hold m.mu.
func (m *Manager) registerNestingLocked(v *Volume) {
	for path, u := range m.byPath {
		if u == v {
			continue
		}
		switch {
		case isStrictDescendant(v.Path, path):
			u.mu.Lock()
			u.Nested[v.Path] = v
			u.mu.Unlock()
		case isStrictDescendant(path, v.Path):
			v.mu.Lock()
			v.Nested[path] = u
			v.mu.Unlock()
		}
	}
}

// unregisterNestingLocked drops v from every ancestor's Nested map,
// the mirror of registerNestingLocked run before v leaves the registry.
// Callers must hold m.mu.
func (m *Manager) unregisterNestingLocked(v *Volume) {
	for path, u := range m.byPath {
		if u == v || !isStrictDescendant(v.Path, path) {
			continue
		}
		u.mu.Lock()
		delete(u.Nested, v.Path)
		u.mu.Unlock()
	}
}

// StatFS delegates to v's backend.
func (m *Manager) StatFS(v *Volume, out *StatFS) error {
	return v.backend.StatFS(v, out)
}

// RestoreAll enumerates journal entries, reconstructs volumes in
// CONFIGURED, calls backend Restore, drives to READY where necessary,
// re-links restored containers, and destroys orphans whose no-longer-
// existing owner was not required (spec.md §4.5, §8 scenario 6).
func (m *Manager) RestoreAll() {
	records, err := m.journal.List()
	if err != nil {
		log.WithError(err).Error("failed to list volume journal during restore")
		return
	}

	// First pass: reconstruct every volume and register it (byID,
	// byPath, byLink, nesting) before any backend Restore/Build runs, so
	// CheckDependencies can see ancestor volumes regardless of the
	// journal's iteration order.
	var restoring []*Volume
	m.mu.Lock()
	for id, rec := range records {
		v := fromRecord(rec)
		backend, ok := m.backends[v.BackendType]
		if !ok {
			log.WithField("volume", id).Warnf("unknown backend %q during restore, marking unready", v.BackendType)
			v.setState(StateUnready)
			_ = m.journal.Put(v.ID, toRecord(v))
			continue
		}
		v.backend = backend
		v.Nested = map[string]*Volume{}
		if v.state == StateInitial {
			v.setState(StateConfigured)
		}

		m.byID[v.ID] = v
		m.byPath[v.Path] = v
		for _, l := range v.Links {
			if l.HostTarget != "" {
				m.byLink[l.HostTarget] = l
			}
		}
		restoring = append(restoring, v)
	}
	for _, v := range restoring {
		m.registerNestingLocked(v)
	}
	m.mu.Unlock()

	// Second pass: drive each volume through Restore/CheckDependencies/
	// Build, then reconcile its links against the currently-running
	// containers.
	for _, v := range restoring {
		id := v.ID

		if err := v.backend.Restore(v); err != nil {
			log.WithError(err).WithField("volume", id).Warn("restore failed, marking unready")
			v.setState(StateUnready)
			_ = m.journal.Put(v.ID, toRecord(v))
			continue
		}

		if v.state != StateReady {
			if err := m.CheckDependencies(v); err != nil {
				log.WithError(err).WithField("volume", id).Warn("dependency check failed on restore, marking unready")
				v.setState(StateUnready)
				_ = m.journal.Put(v.ID, toRecord(v))
				continue
			}
			if err := v.backend.Build(v); err != nil {
				log.WithError(err).WithField("volume", id).Warn("rebuild on restore failed, marking unready")
				v.setState(StateUnready)
				_ = m.journal.Put(v.ID, toRecord(v))
				continue
			}
			v.setState(StateReady)
		}

		for _, l := range v.Links {
			if m.resolver != nil && m.resolver.IsRunning(l.Container) {
				continue
			}
			if l.Required {
				log.WithField("volume", id).Warnf("orphaned required link to %s kept on restore", l.Container)
				continue
			}
			if err := m.Unlink(v, l.Container, l.Target, false); err != nil {
				log.WithError(err).WithField("volume", id).Warn("failed to drop orphaned non-required link on restore")
			}
		}

		if v.State() == StateToDestroy {
			if err := m.DeleteOne(v); err != nil {
				log.WithError(err).WithField("volume", id).Warn("failed to destroy orphaned volume on restore")
			}
			continue
		}

		_ = m.journal.Put(v.ID, toRecord(v))
	}
}

// DeleteAll drives every volume to DESTROYED on shutdown, best-effort.
func (m *Manager) DeleteAll() {
	m.mu.Lock()
	all := make([]*Volume, 0, len(m.byID))
	for _, v := range m.byID {
		all = append(all, v)
	}
	m.mu.Unlock()

	for _, v := range all {
		if v.KeepStorage {
			continue
		}
		if err := m.DeleteOne(v); err != nil {
			log.WithError(err).WithField("volume", v.ID).Warn("failed to delete volume during shutdown")
		}
	}
}

// fmtID is a small helper used by diagnostics to avoid printing entire
// Volume structs.
func fmtID(v *Volume) string { return fmt.Sprintf("%s@%s", v.ID, v.Path) }
