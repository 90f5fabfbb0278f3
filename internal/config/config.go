// Package config loads the optional per-base-directory configuration file
// for the kvs commands. The file is line oriented: "key value" pairs, blank
// lines and '#' comments ignored. A missing file is not an error; every
// setting has a default and command-line flags override the file anyway.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBaseDirectoryPath is where the kvs commands keep configuration and
// data. It defaults to $KVS_BASE if it is set, otherwise to $HOME/lib/kvs.
// Commands override this via the -base flag.
var DefaultBaseDirectoryPath string

func init() {
	if base := os.Getenv("KVS_BASE"); base != "" {
		DefaultBaseDirectoryPath = base
	} else {
		DefaultBaseDirectoryPath = os.ExpandEnv("$HOME/lib/kvs")
	}
}

type C struct {
	// ListenAddr is the TCP address the server binds. There is no
	// authentication nor TLS so the server must not be exposed on a public
	// address.
	ListenAddr string

	// Engine selects the storage backend: "kvs", "bolt" or "redis".
	Engine string

	// DataDir holds the on-disk state of the kvs and bolt engines.
	// If relative, it is taken relative to the base directory.
	DataDir string

	// MetricsAddr, when non-empty, serves Prometheus metrics there.
	MetricsAddr string

	// RedisAddr only makes sense if the engine is "redis".
	RedisAddr string

	// These only make sense when archiving compacted logs to S3 is wanted.
	// The AWS profile is used for credentials. Leaving the bucket empty
	// disables archiving.
	S3Profile string
	S3Region  string
	S3Bucket  string

	// Directory the config file was loaded from (or would have been).
	base string
}

// Load loads the configuration from the file called "config" in the given
// base directory. A missing file yields the zero configuration for that base.
func Load(base string) (*C, error) {
	filename := filepath.Join(base, "config")
	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		return &C{base: base}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	defer func() {
		// Ignore error closing file opened only for reading.
		_ = f.Close()
	}()
	c, err := load(f)
	if err != nil {
		return nil, err
	}
	c.base = base
	if c.DataDir != "" && !filepath.IsAbs(c.DataDir) {
		c.DataDir = filepath.Clean(filepath.Join(base, c.DataDir))
	}
	return c, nil
}

func load(f io.Reader) (*C, error) {
	c := C{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		i := strings.IndexAny(line, " \t")
		if i == -1 {
			return nil, fmt.Errorf("load: no separator in %q", line)
		}
		switch key, val := line[:i], strings.TrimSpace(line[i:]); key {
		case "listen-addr":
			c.ListenAddr = val
		case "engine":
			c.Engine = val
		case "data-dir":
			c.DataDir = val
		case "metrics-addr":
			c.MetricsAddr = val
		case "redis-addr":
			c.RedisAddr = val
		case "s3-profile":
			c.S3Profile = val
		case "s3-region":
			c.S3Region = val
		case "s3-bucket":
			c.S3Bucket = val
		default:
			return nil, fmt.Errorf("load: unknown key %q", key)
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	return &c, nil
}

// Base returns the base directory this configuration belongs to.
func (c *C) Base() string {
	if c.base != "" {
		return c.base
	}
	return DefaultBaseDirectoryPath
}

// DataDirPath returns the directory holding engine state, defaulting to
// "data" under the base directory.
func (c *C) DataDirPath() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return filepath.Join(c.Base(), "data")
}
