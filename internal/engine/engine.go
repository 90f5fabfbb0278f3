// Package engine provides the storage backends behind kvs-server. The log
// engine in logstore.go is the native one; bolt.go and redis.go honor the
// same contract on top of an embedded B-tree and a Redis server.
package engine

import (
	"fmt"

	"github.com/nicolagi/kvs/internal/config"
	"github.com/nicolagi/kvs/internal/kverr"
)

// Engine is what a connection handler needs from a storage backend. One
// instance is shared by all handler goroutines; implementations must be safe
// for concurrent use.
type Engine interface {
	// Set maps key to value, overwriting any previous mapping.
	Set(key, value string) error

	// Get returns the value mapped to key. The second return value reports
	// presence; an absent key is not an error.
	Get(key string) (string, bool, error)

	// Remove deletes the mapping for key, failing with KeyNotFound if there
	// is none.
	Remove(key string) error
}

// New builds the backend named by c.Engine. Backends holding resources also
// implement io.Closer; callers should close them on the way out.
func New(c *config.C) (Engine, error) {
	switch c.Engine {
	case "", "kvs":
		var opts []LogStoreOption
		if c.S3Bucket != "" {
			opts = append(opts, WithArchiver(NewS3Archiver(c.S3Profile, c.S3Region, c.S3Bucket)))
		}
		return OpenLogStore(c.DataDirPath(), opts...)
	case "bolt":
		return OpenBoltStore(c.DataDirPath())
	case "redis":
		return NewRedisStore(c.RedisAddr), nil
	default:
		return nil, kverr.Wrap(fmt.Errorf("%q: no such engine", c.Engine), kverr.Engine)
	}
}
