// Package history records the outcome of every check run in a badger
// database, so root digests can be followed across runs.
package history

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"time"
)

// KeySeparator separates the site from the timestamp in keys.
const KeySeparator = '\x00'

// Record is the outcome of one check run.
type Record struct {
	Site           string
	Timestamp      time.Time
	Duration       time.Duration
	RootDigest     string
	PreviousDigest string
	New            int
	Deleted        int
	Changed        int
	Ignored        int
	ArchiveID      string
	Baseline       bool
}

// HasChanges reports whether the run found additions, deletions or changes.
func (r *Record) HasChanges() bool {
	return r.New > 0 || r.Deleted > 0 || r.Changed > 0
}

// Encode serializes the record using gob.
func (r *Record) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode deserializes data into the record using gob.
func (r *Record) Decode(data []byte) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(r)
}

// MakeKey creates a key from a site and a timestamp.
// Format: <site>\x00<unix nanoseconds, big endian>, so keys of one site sort
// chronologically.
func MakeKey(site string, ts time.Time) []byte {
	key := make([]byte, 0, len(site)+9)
	key = append(key, site...)
	key = append(key, KeySeparator)
	return binary.BigEndian.AppendUint64(key, uint64(ts.UnixNano()))
}

// ParseKey extracts the site and timestamp from a key.
func ParseKey(key []byte) (site string, ts time.Time) {
	idx := bytes.IndexByte(key, KeySeparator)
	if idx == -1 || len(key)-idx-1 != 8 {
		return string(key), time.Time{}
	}
	nanos := int64(binary.BigEndian.Uint64(key[idx+1:]))
	return string(key[:idx]), time.Unix(0, nanos).UTC()
}

// MakeKeyPrefix returns the prefix of every key of a site.
func MakeKeyPrefix(site string) []byte {
	return []byte(site + string(KeySeparator))
}
