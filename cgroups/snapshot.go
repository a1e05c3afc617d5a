package cgroups

import (
	"sort"
	"strings"

	"github.com/hashicorp/go-memdb"

	imount "github.com/ctlcore/supervisor/internal/mount"
)

// discoveredNode is the go-memdb record for a node surfaced by
// Snapshot, indexed by path and by subsystem-set key (SPEC_FULL.md
// Open Question resolution #3: snapshot results are cached in an
// in-memory indexed table, rebuilt wholesale on every Snapshot() call
// rather than incrementally invalidated).
type discoveredNode struct {
	Path    string
	SetKey  string
	IsRoot  bool
	NodeRef *Node
}

var snapshotSchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		"node": {
			Name: "node",
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Path"},
				},
				"setkey": {
					Name:    "setkey",
					Unique:  false,
					Indexer: &memdb.StringFieldIndex{Field: "SetKey"},
				},
			},
		},
	},
}

// Snapshotter discovers the live cgroup forest from the mount table and
// caches it for fast repeated lookups within one supervisor tick.
type Snapshotter struct {
	Registry   *Registry
	Subsystems *SubsystemRegistry

	db *memdb.MemDB
}

// NewSnapshotter builds a Snapshotter over the given node registry and
// subsystem registry.
func NewSnapshotter(registry *Registry, subs *SubsystemRegistry) (*Snapshotter, error) {
	db, err := memdb.NewMemDB(snapshotSchema)
	if err != nil {
		return nil, err
	}
	return &Snapshotter{Registry: registry, Subsystems: subs, db: db}, nil
}

// Snapshot walks the live mount table and, for every mount whose
// option-flags intersect the known subsystem set, gets or creates the
// corresponding root node, populates its children recursively, and
// returns the flat list of every discovered node (spec.md §4.3). If two
// mounts carry the same subsystem-set, the first encountered wins; the
// duplicate is skipped.
func (s *Snapshotter) Snapshot() ([]*Node, error) {
	table, err := imount.Snapshot()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var flat []*Node

	txn := s.db.Txn(true)

	for _, info := range table.Infos() {
		if info.FSType != "cgroup" && info.FSType != "cgroup2" {
			continue
		}
		names := intersectKnown(info.VFSOptions)
		if len(names) == 0 {
			continue
		}

		subs := make([]*Subsystem, len(names))
		for i, name := range names {
			subs[i] = s.Subsystems.Get(name)
		}
		key := SetKey(subs)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		desc := imount.NewDescriptor(info.Source, info.Mountpoint, info.FSType, 0, info.VFSOptions)
		root := s.Registry.GetRoot(desc, subs)

		if err := root.Reattach(); err != nil {
			txn.Abort()
			return nil, err
		}

		nodes, err := root.FindChildren()
		if err != nil {
			txn.Abort()
			return nil, err
		}
		flat = append(flat, nodes...)

		for _, n := range nodes {
			rec := &discoveredNode{Path: n.Path(), SetKey: key, IsRoot: n.IsRoot(), NodeRef: n}
			if err := txn.Insert("node", rec); err != nil {
				txn.Abort()
				return nil, err
			}
		}
	}

	txn.Commit()
	return flat, nil
}

// Lookup returns the cached node at path, if the most recent Snapshot
// discovered one there.
func (s *Snapshotter) Lookup(path string) (*Node, bool) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First("node", "id", path)
	if err != nil || raw == nil {
		return nil, false
	}
	return raw.(*discoveredNode).NodeRef, true
}

// RootsWithSubsystem returns every cached root node whose subsystem-set
// includes name.
func (s *Snapshotter) RootsWithSubsystem(name string) []*Node {
	txn := s.db.Txn(false)
	defer txn.Abort()
	it, err := txn.Get("node", "id")
	if err != nil {
		return nil
	}
	var out []*Node
	for raw := it.Next(); raw != nil; raw = it.Next() {
		rec := raw.(*discoveredNode)
		if !rec.IsRoot {
			continue
		}
		for _, sub := range rec.NodeRef.Subsystems() {
			if sub.Name() == name {
				out = append(out, rec.NodeRef)
				break
			}
		}
	}
	return out
}

func intersectKnown(vfsOptions string) []string {
	var names []string
	for _, opt := range strings.Split(vfsOptions, ",") {
		if IsKnown(opt) {
			names = append(names, opt)
		}
	}
	sort.Strings(names)
	return names
}
