package volume

import (
	"strconv"
	"strings"

	"github.com/ctlcore/supervisor/internal/ctlerr"
	"github.com/ctlcore/supervisor/internal/sizefmt"
)

// LinkSpec is one entry of the semicolon-separated `containers` key of
// spec.md §6: "ct[:target[:ro[:rq]]]".
type LinkSpec struct {
	Container string
	Target    string
	ReadOnly  bool
	Required  bool
}

// CreateSpec is the parsed, validated form of the string-map spec
// accepted by volume.create (spec.md §6).
type CreateSpec struct {
	Path        string
	Backend     BackendType
	Storage     string
	Layers      []string
	SpaceLimit     int64
	InodeLimit     int64
	SpaceGuarantee int64
	InodeGuarantee int64
	ReadOnly    bool
	User        string
	Group       string
	Permissions uint32
	Containers  []LinkSpec
	Place       string
	PlaceKey    string
	OwnerContainer string
	OwnerUser      string
	OwnerGroup     string
	Private     string
	Labels      map[string]string
	TargetContainer string
}

var validBackends = map[string]BackendType{
	string(BackendPlain): BackendPlain, string(BackendBind): BackendBind,
	string(BackendRBD): BackendRBD, string(BackendLoop): BackendLoop,
	string(BackendOverlay): BackendOverlay, string(BackendTmpfs): BackendTmpfs,
	string(BackendHugetmpfs): BackendHugetmpfs, string(BackendQuota): BackendQuota,
	string(BackendLVM): BackendLVM,
}

var knownKeys = map[string]bool{
	"path": true, "backend": true, "storage": true, "layers": true,
	"space_limit": true, "inode_limit": true, "space_guarantee": true, "inode_guarantee": true,
	"read_only": true, "user": true, "group": true, "permissions": true,
	"containers": true, "place": true, "place_key": true,
	"owner_container": true, "owner_user": true, "owner_group": true,
	"private": true, "labels": true, "target_container": true,
}

// ParseCreateSpec validates and parses the recognized keys of spec.md
// §6; an unknown key is InvalidValue.
func ParseCreateSpec(kv map[string]string) (*CreateSpec, error) {
	for k := range kv {
		if !knownKeys[k] {
			return nil, ctlerr.New(ctlerr.InvalidValue, "unknown volume.create key %q", k)
		}
	}

	spec := &CreateSpec{Labels: map[string]string{}}
	spec.Path = kv["path"]
	spec.Storage = kv["storage"]
	spec.Place = kv["place"]
	spec.PlaceKey = kv["place_key"]
	spec.OwnerContainer = kv["owner_container"]
	spec.OwnerUser = kv["owner_user"]
	spec.OwnerGroup = kv["owner_group"]
	spec.Private = kv["private"]
	spec.User = kv["user"]
	spec.Group = kv["group"]
	spec.TargetContainer = kv["target_container"]

	if raw, ok := kv["backend"]; ok {
		b, ok := validBackends[raw]
		if !ok {
			return nil, ctlerr.New(ctlerr.InvalidValue, "unknown backend %q", raw)
		}
		spec.Backend = b
	} else {
		spec.Backend = BackendPlain
	}

	if raw, ok := kv["layers"]; ok && raw != "" {
		spec.Layers = strings.Split(raw, ";")
	}

	var err error
	if spec.SpaceLimit, err = sizefmt.ParseBytes(kv["space_limit"]); err != nil {
		return nil, ctlerr.Wrap(ctlerr.InvalidValue, err, "space_limit")
	}
	if spec.InodeLimit, err = sizefmt.ParseCount(kv["inode_limit"]); err != nil {
		return nil, ctlerr.Wrap(ctlerr.InvalidValue, err, "inode_limit")
	}
	if spec.SpaceGuarantee, err = sizefmt.ParseBytes(kv["space_guarantee"]); err != nil {
		return nil, ctlerr.Wrap(ctlerr.InvalidValue, err, "space_guarantee")
	}
	if spec.InodeGuarantee, err = sizefmt.ParseCount(kv["inode_guarantee"]); err != nil {
		return nil, ctlerr.Wrap(ctlerr.InvalidValue, err, "inode_guarantee")
	}

	// spec.md §3: space_guarantee <= space_limit when both are non-zero,
	// likewise for inodes.
	if spec.SpaceLimit != 0 && spec.SpaceGuarantee > spec.SpaceLimit {
		return nil, ctlerr.New(ctlerr.InvalidValue, "space_guarantee exceeds space_limit")
	}
	if spec.InodeLimit != 0 && spec.InodeGuarantee > spec.InodeLimit {
		return nil, ctlerr.New(ctlerr.InvalidValue, "inode_guarantee exceeds inode_limit")
	}

	if raw, ok := kv["read_only"]; ok {
		spec.ReadOnly, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, ctlerr.Wrap(ctlerr.InvalidValue, err, "read_only")
		}
	}

	if raw, ok := kv["permissions"]; ok && raw != "" {
		perm, err := strconv.ParseUint(raw, 8, 32)
		if err != nil {
			return nil, ctlerr.Wrap(ctlerr.InvalidValue, err, "permissions")
		}
		spec.Permissions = uint32(perm)
	} else {
		spec.Permissions = 0o755
	}

	if raw, ok := kv["containers"]; ok && raw != "" {
		for _, entry := range strings.Split(raw, ";") {
			ls, err := parseLinkSpec(entry)
			if err != nil {
				return nil, err
			}
			spec.Containers = append(spec.Containers, ls)
		}
	}

	if raw, ok := kv["labels"]; ok && raw != "" {
		for _, pair := range strings.Split(raw, ";") {
			k, v, found := strings.Cut(pair, "=")
			if !found {
				return nil, ctlerr.New(ctlerr.InvalidValue, "malformed labels entry %q", pair)
			}
			spec.Labels[k] = v
		}
	}

	return spec, nil
}

func parseLinkSpec(entry string) (LinkSpec, error) {
	parts := strings.Split(entry, ":")
	ls := LinkSpec{Container: parts[0]}
	if ls.Container == "" {
		return ls, ctlerr.New(ctlerr.InvalidValue, "empty container name in containers spec")
	}
	if len(parts) > 1 {
		ls.Target = parts[1]
	}
	if len(parts) > 2 {
		switch parts[2] {
		case "ro":
			ls.ReadOnly = true
		case "rw", "":
		default:
			return ls, ctlerr.New(ctlerr.InvalidValue, "malformed containers entry %q", entry)
		}
	}
	if len(parts) > 3 {
		switch parts[3] {
		case "rq":
			ls.Required = true
		case "":
		default:
			return ls, ctlerr.New(ctlerr.InvalidValue, "malformed containers entry %q", entry)
		}
	}
	if len(parts) > 4 {
		return ls, ctlerr.New(ctlerr.InvalidValue, "malformed containers entry %q", entry)
	}
	return ls, nil
}
