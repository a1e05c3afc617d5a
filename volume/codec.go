package volume

import (
	"strconv"
	"strings"

	"github.com/ctlcore/supervisor/volume/journal"
)

// toRecord serializes v into the journal's string-map shape (spec.md
// §6). Fields starting with "_" are internal scratch, per the spec:
// the auto-path flag and the container link list.
func toRecord(v *Volume) journal.Record {
	rec := journal.Record{
		"id":               v.ID,
		"path":             v.Path,
		"internal_path":    v.InternalPath,
		"place":            v.Place,
		"storage":          v.Storage,
		"storage_path":     v.StoragePath,
		"backend":          string(v.BackendType),
		"state":            v.state.String(),
		"read_only":        strconv.FormatBool(v.ReadOnly),
		"layers":           strings.Join(v.Layers, ";"),
		"space_limit":      strconv.FormatInt(v.SpaceLimit, 10),
		"inode_limit":      strconv.FormatInt(v.InodeLimit, 10),
		"space_guarantee":  strconv.FormatInt(v.SpaceGuarantee, 10),
		"inode_guarantee":  strconv.FormatInt(v.InodeGuarantee, 10),
		"claimed_space":    strconv.FormatInt(v.ClaimedSpace, 10),
		"owner_container":  v.OwnerContainer,
		"creator":          v.Creator,
		"permissions":      strconv.FormatUint(uint64(v.Permissions), 8),
		"_is_auto_path":    strconv.FormatBool(v.IsAutoPath),
		"_keep_storage":    strconv.FormatBool(v.KeepStorage),
		"_device_name":     v.DeviceName,
		"_device_index":    strconv.Itoa(v.DeviceIndex),
		"_private":         v.PrivateBlob,
	}
	for k, val := range v.Labels {
		rec["label."+k] = val
	}
	var links []string
	for _, l := range v.Links {
		links = append(links, encodeLink(l))
	}
	rec["_links"] = strings.Join(links, ";")
	return rec
}

func encodeLink(l *Link) string {
	ro := "rw"
	if l.ReadOnly {
		ro = "ro"
	}
	rq := ""
	if l.Required {
		rq = "rq"
	}
	return strings.Join([]string{l.Container, l.Target, l.HostTarget, ro, rq}, ",")
}

func decodeLink(v *Volume, s string) *Link {
	parts := strings.Split(s, ",")
	l := &Link{Volume: v}
	if len(parts) > 0 {
		l.Container = parts[0]
	}
	if len(parts) > 1 {
		l.Target = parts[1]
	}
	if len(parts) > 2 {
		l.HostTarget = parts[2]
	}
	if len(parts) > 3 {
		l.ReadOnly = parts[3] == "ro"
	}
	if len(parts) > 4 {
		l.Required = parts[4] == "rq"
	}
	return l
}

// fromRecord reconstructs a Volume's attributes from a journal record.
// It does not populate backend or links' Volume back-references beyond
// what decodeLink sets here; Manager.RestoreAll wires the rest.
func fromRecord(rec journal.Record) *Volume {
	v := &Volume{Labels: map[string]string{}}
	v.ID = rec["id"]
	v.Path = rec["path"]
	v.InternalPath = rec["internal_path"]
	v.Place = rec["place"]
	v.Storage = rec["storage"]
	v.StoragePath = rec["storage_path"]
	v.BackendType = BackendType(rec["backend"])
	v.ReadOnly, _ = strconv.ParseBool(rec["read_only"])
	if rec["layers"] != "" {
		v.Layers = strings.Split(rec["layers"], ";")
	}
	v.SpaceLimit, _ = strconv.ParseInt(rec["space_limit"], 10, 64)
	v.InodeLimit, _ = strconv.ParseInt(rec["inode_limit"], 10, 64)
	v.SpaceGuarantee, _ = strconv.ParseInt(rec["space_guarantee"], 10, 64)
	v.InodeGuarantee, _ = strconv.ParseInt(rec["inode_guarantee"], 10, 64)
	v.ClaimedSpace, _ = strconv.ParseInt(rec["claimed_space"], 10, 64)
	v.OwnerContainer = rec["owner_container"]
	v.Creator = rec["creator"]
	if perm, err := strconv.ParseUint(rec["permissions"], 8, 32); err == nil {
		v.Permissions = uint32(perm)
	}
	v.IsAutoPath, _ = strconv.ParseBool(rec["_is_auto_path"])
	v.KeepStorage, _ = strconv.ParseBool(rec["_keep_storage"])
	v.DeviceName = rec["_device_name"]
	v.DeviceIndex, _ = strconv.Atoi(rec["_device_index"])
	v.PrivateBlob = rec["_private"]

	for k, val := range rec {
		if strings.HasPrefix(k, "label.") {
			v.Labels[strings.TrimPrefix(k, "label.")] = val
		}
	}

	if raw := rec["_links"]; raw != "" {
		for _, entry := range strings.Split(raw, ";") {
			v.Links = append(v.Links, decodeLink(v, entry))
		}
	}

	if s, ok := parseState(rec["state"]); ok {
		v.state = s
	}
	return v
}

func parseState(s string) (State, bool) {
	for st := StateInitial; st <= StateUnready; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return StateInitial, false
}

// Describe returns the volume's public attribute map for introspection,
// supplementing spec.md's journal `dump` with a read-only operation that
// omits PrivateBlob (SPEC_FULL.md "Supplemented features": private data
// is never echoed back through introspection, unlike labels).
func (v *Volume) Describe() map[string]string {
	v.mu.Lock()
	defer v.mu.Unlock()
	rec := toRecord(v)
	delete(rec, "_private")
	out := make(map[string]string, len(rec))
	for k, val := range rec {
		out[k] = val
	}
	return out
}
