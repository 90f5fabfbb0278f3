package engine

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"

	"github.com/nicolagi/kvs/internal/kverr"
	"github.com/pkg/errors"
)

const (
	logFileName = "kvs.store"

	logStoreDirPerm  = 0700
	logStoreFilePerm = 0600

	// Records are lines; allow for large values.
	maxRecordLength = 8 * 1024 * 1024
)

var _ Engine = (*LogStore)(nil)

// LogStore is the native storage backend: an append-only log of Set/Rm
// records plus an in-memory index from key to the ordinal (zero-based line
// number) of the latest Set for that key. The one instance is shared by all
// handler goroutines; appends serialize on wmu, index lookups ride imu.
//
// Lock order is wmu then imu, always. A writer appends and flushes under
// wmu, then updates index and nextPos under imu while still holding wmu, so
// the ordinal recorded for a line always equals the position of that line in
// the file. A crash between flush and index update is benign: the next open
// rebuilds the index from the log.
type LogStore struct {
	dir  string
	path string

	wmu sync.Mutex // serializes appends and compaction
	f   *os.File
	w   *bufio.Writer

	imu     sync.RWMutex // guards index and nextPos
	index   map[string]int
	nextPos int

	archiver Archiver
}

type LogStoreOption func(*LogStore)

// WithArchiver has compaction hand the retired log to a, instead of just
// discarding it.
func WithArchiver(a Archiver) LogStoreOption {
	return func(s *LogStore) { s.archiver = a }
}

// OpenLogStore opens the log at dir/kvs.store, creating directory and file
// as needed, and rebuilds the index by replaying every record. A record that
// fails to decode aborts the open.
func OpenLogStore(dir string, opts ...LogStoreOption) (*LogStore, error) {
	s := &LogStore{
		dir:  dir,
		path: filepath.Join(dir, logFileName),
	}
	for _, o := range opts {
		o(s)
	}
	if err := os.MkdirAll(dir, logStoreDirPerm); err != nil {
		return nil, kverr.Wrap(err, kverr.IO)
	}
	if fi, err := os.Stat(s.path); err == nil && !fi.Mode().IsRegular() {
		return nil, kverr.Newf(kverr.IO, "%q is not a regular file", s.path)
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, logStoreFilePerm)
	if err != nil {
		return nil, kverr.Wrap(err, kverr.IO)
	}
	s.f = f
	s.w = bufio.NewWriter(f)
	index, count, err := replay(s.path)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.index = index
	s.nextPos = count
	return s, nil
}

// replay reads every record of the log at path and folds it into an index,
// latest write wins, removes acting as tombstones. Returns the index and the
// record count.
func replay(path string) (map[string]int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, kverr.Wrap(err, kverr.IO)
	}
	defer func() { _ = f.Close() }()
	index := make(map[string]int)
	count := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordLength)
	for sc.Scan() {
		r, err := decodeRecord(sc.Bytes())
		if err != nil {
			return nil, 0, errors.Wrapf(err, "record %d", count)
		}
		if r.Set != nil {
			index[r.Set[0]] = count
		} else {
			delete(index, *r.Rm)
		}
		count++
	}
	if err := sc.Err(); err != nil {
		return nil, 0, kverr.Wrap(err, kverr.IO)
	}
	return index, count, nil
}

func (s *LogStore) Set(key, value string) error {
	b, err := setRecord(key, value).encode()
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.append(b); err != nil {
		return err
	}
	s.imu.Lock()
	s.index[key] = s.nextPos
	s.nextPos++
	s.imu.Unlock()
	return nil
}

func (s *LogStore) Get(key string) (string, bool, error) {
	s.imu.RLock()
	ordinal, ok := s.index[key]
	s.imu.RUnlock()
	if !ok {
		return "", false, nil
	}
	r, err := s.recordAt(ordinal)
	if err != nil {
		return "", false, err
	}
	if !r.isSet(key) {
		return "", false, kverr.Newf(kverr.Index, "ordinal %d is not a Set for %q", ordinal, key)
	}
	return r.Set[1], true, nil
}

func (s *LogStore) Remove(key string) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.imu.RLock()
	_, ok := s.index[key]
	s.imu.RUnlock()
	if !ok {
		// No tombstone for a key that is not there.
		return kverr.Newf(kverr.KeyNotFound, "%q", key)
	}
	b, err := rmRecord(key).encode()
	if err != nil {
		return err
	}
	if err := s.append(b); err != nil {
		return err
	}
	s.imu.Lock()
	delete(s.index, key)
	s.nextPos++
	s.imu.Unlock()
	return nil
}

// append writes one encoded record and its terminator and flushes. Callers
// hold wmu.
func (s *LogStore) append(b []byte) error {
	if _, err := s.w.Write(b); err != nil {
		return kverr.Wrap(err, kverr.IO)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return kverr.Wrap(err, kverr.IO)
	}
	if err := s.w.Flush(); err != nil {
		return kverr.Wrap(err, kverr.IO)
	}
	return nil
}

// recordAt re-opens the log and scans to the record at the given ordinal.
// Re-opening makes reads independent of the append handle, so they can run
// in parallel with one in-flight writer.
func (s *LogStore) recordAt(ordinal int) (record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return record{}, kverr.Wrap(err, kverr.IO)
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordLength)
	for i := 0; sc.Scan(); i++ {
		if i == ordinal {
			return decodeRecord(sc.Bytes())
		}
	}
	if err := sc.Err(); err != nil {
		return record{}, kverr.Wrap(err, kverr.IO)
	}
	return record{}, kverr.Newf(kverr.Index, "ordinal %d past end of log", ordinal)
}

// Len returns the number of live keys.
func (s *LogStore) Len() int {
	s.imu.RLock()
	defer s.imu.RUnlock()
	return len(s.index)
}

// Close flushes buffered writes and releases the append handle.
func (s *LogStore) Close() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.w.Flush(); err != nil {
		_ = s.f.Close()
		return kverr.Wrap(err, kverr.IO)
	}
	return kverr.Wrap(s.f.Close(), kverr.IO)
}
