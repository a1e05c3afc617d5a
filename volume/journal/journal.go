// Package journal implements the crash-recoverable key-value journal
// backing volume persistence (spec.md §4.5, §6 "Persisted journal"):
// one record per volume, keyed by id, serialized as a string map, with
// fields starting with "_" treated as internal scratch
// (auto-path flag, loop device number, container link list).
//
// Grounded on docker/docker/volume/service's use of boltdb (now
// go.etcd.io/bbolt) as the on-disk metadata store (restore.go,
// db_test.go).
package journal

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/ctlcore/supervisor/internal/ctlerr"
)

var volumeBucket = []byte("volumes")

// Journal is a bbolt-backed KV store of volume records.
type Journal struct {
	db *bolt.DB
}

// Open opens (creating if absent) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, ctlerr.Wrap(ctlerr.Unknown, err, "open volume journal %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(volumeBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, ctlerr.Wrap(ctlerr.Unknown, err, "initialize volume journal bucket")
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying bbolt handle.
func (j *Journal) Close() error { return j.db.Close() }

// Record is the serialized attribute map for one volume, per spec.md
// §6: "containing all attributes of §3 serialized as a string map."
type Record map[string]string

// Put persists rec under id, overwriting any existing record. Callers
// (Manager) call this before issuing the corresponding kernel syscall,
// per spec.md §4.5's crash-recovery ordering.
func (j *Journal) Put(id string, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return ctlerr.Wrap(ctlerr.Unknown, err, "marshal journal record %s", id)
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(volumeBucket).Put([]byte(id), b)
	})
}

// Get returns the record for id, or (nil, false) if absent.
func (j *Journal) Get(id string) (Record, bool, error) {
	var rec Record
	var found bool
	err := j.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(volumeBucket).Get([]byte(id))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return nil, false, ctlerr.Wrap(ctlerr.Unknown, err, "unmarshal journal record %s", id)
	}
	return rec, found, nil
}

// Delete removes the record for id. Idempotent.
func (j *Journal) Delete(id string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(volumeBucket).Delete([]byte(id))
	})
}

// List returns every record currently in the journal, for restore_all's
// enumeration pass.
func (j *Journal) List() (map[string]Record, error) {
	out := make(map[string]Record)
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(volumeBucket).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out[string(k)] = rec
			return nil
		})
	})
	if err != nil {
		return nil, ctlerr.Wrap(ctlerr.Unknown, err, "list journal records")
	}
	return out, nil
}
