package engine

import (
	"encoding/json"

	"github.com/nicolagi/kvs/internal/kverr"
)

// record is one entry of the on-disk log, a tagged variant of exactly two
// shapes. The JSON encoding is pinned by the log format:
//
//	{"Set":["key","value"]}
//	{"Rm":"key"}
//
// one object per line, '\n' terminated.
type record struct {
	Set []string `json:"Set,omitempty"`
	Rm  *string  `json:"Rm,omitempty"`
}

func setRecord(key, value string) record {
	return record{Set: []string{key, value}}
}

func rmRecord(key string) record {
	return record{Rm: &key}
}

// isSet reports whether the record is a Set for the given key.
func (r record) isSet(key string) bool {
	return len(r.Set) == 2 && r.Set[0] == key
}

// key returns the key the record is about.
func (r record) key() string {
	if len(r.Set) == 2 {
		return r.Set[0]
	}
	if r.Rm != nil {
		return *r.Rm
	}
	return ""
}

func (r record) encode() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, kverr.Wrap(err, kverr.Serde)
	}
	return b, nil
}

func decodeRecord(line []byte) (record, error) {
	var r record
	if err := json.Unmarshal(line, &r); err != nil {
		return record{}, kverr.Wrap(err, kverr.Serde)
	}
	switch {
	case r.Set != nil && r.Rm != nil:
		return record{}, kverr.Newf(kverr.Serde, "record %q is both Set and Rm", line)
	case r.Set != nil && len(r.Set) != 2:
		return record{}, kverr.Newf(kverr.Serde, "Set record %q wants 2 elements", line)
	case r.Set == nil && r.Rm == nil:
		return record{}, kverr.Newf(kverr.Serde, "record %q is neither Set nor Rm", line)
	}
	return r, nil
}
