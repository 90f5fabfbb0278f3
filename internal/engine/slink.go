package engine

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/docker/go-units"
	"github.com/google/uuid"
	"github.com/nicolagi/kvs/internal/kverr"
	log "github.com/sirupsen/logrus"
)

const slinkFileName = logFileName + ".slink"

// Slink compacts the log down to the currently live Set records: the lines
// referenced by the index are copied, in log order, to a temporary file
// which then replaces the log. The index is rebuilt against the new file and
// nextPos becomes the survivor count. The writer mutex is held throughout,
// so no Set or Remove can interleave; reads can, because they re-open the
// file and re-scan.
//
// If an archiver is configured, the retired log is handed to it before the
// swap; archive failures are logged and do not fail the compaction.
func (s *LogStore) Slink() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.w.Flush(); err != nil {
		return kverr.Wrap(err, kverr.IO)
	}

	s.imu.RLock()
	live := make([]int, 0, len(s.index))
	for _, ordinal := range s.index {
		live = append(live, ordinal)
	}
	s.imu.RUnlock()
	sort.Ints(live)

	beforeSize, err := s.copyLive(live)
	if err != nil {
		return err
	}
	s.archiveRetired()

	if err := s.f.Close(); err != nil {
		return kverr.Wrap(err, kverr.IO)
	}
	if err := os.Rename(filepath.Join(s.dir, slinkFileName), s.path); err != nil {
		return kverr.Wrap(err, kverr.IO)
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, logStoreFilePerm)
	if err != nil {
		return kverr.Wrap(err, kverr.IO)
	}
	s.f = f
	s.w = bufio.NewWriter(f)

	index, count, err := replay(s.path)
	if err != nil {
		return err
	}
	s.imu.Lock()
	s.index = index
	s.nextPos = count
	s.imu.Unlock()

	afterSize := int64(0)
	if fi, err := os.Stat(s.path); err == nil {
		afterSize = fi.Size()
	}
	log.WithFields(log.Fields{
		"op":        "slink",
		"records":   count,
		"before":    units.BytesSize(float64(beforeSize)),
		"after":     units.BytesSize(float64(afterSize)),
		"reclaimed": units.BytesSize(float64(beforeSize - afterSize)),
	}).Info("Compacted log")
	return nil
}

// copyLive writes the records at the given ordinals (ascending) to the
// temporary compaction file and returns the size of the current log.
func (s *LogStore) copyLive(live []int) (int64, error) {
	src, err := os.Open(s.path)
	if err != nil {
		return 0, kverr.Wrap(err, kverr.IO)
	}
	defer func() { _ = src.Close() }()
	fi, err := src.Stat()
	if err != nil {
		return 0, kverr.Wrap(err, kverr.IO)
	}
	dst, err := os.OpenFile(filepath.Join(s.dir, slinkFileName), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, logStoreFilePerm)
	if err != nil {
		return 0, kverr.Wrap(err, kverr.IO)
	}
	w := bufio.NewWriter(dst)
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxRecordLength)
	next := 0
	for i := 0; sc.Scan() && next < len(live); i++ {
		if i != live[next] {
			continue
		}
		next++
		if _, err := w.Write(sc.Bytes()); err != nil {
			_ = dst.Close()
			return 0, kverr.Wrap(err, kverr.IO)
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = dst.Close()
			return 0, kverr.Wrap(err, kverr.IO)
		}
	}
	if err := sc.Err(); err != nil {
		_ = dst.Close()
		return 0, kverr.Wrap(err, kverr.IO)
	}
	if next != len(live) {
		_ = dst.Close()
		return 0, kverr.Newf(kverr.Index, "only %d of %d live records found", next, len(live))
	}
	if err := w.Flush(); err != nil {
		_ = dst.Close()
		return 0, kverr.Wrap(err, kverr.IO)
	}
	if err := dst.Close(); err != nil {
		return 0, kverr.Wrap(err, kverr.IO)
	}
	return fi.Size(), nil
}

// archiveRetired hands the about-to-be-replaced log to the archiver, if any.
func (s *LogStore) archiveRetired() {
	if s.archiver == nil {
		return
	}
	contents, err := os.ReadFile(s.path)
	if err == nil {
		name := fmt.Sprintf("%d-%s.store", time.Now().Unix(), uuid.New())
		err = s.archiver.Archive(name, contents)
	}
	if err != nil {
		log.WithFields(log.Fields{
			"op":    "slink",
			"cause": err,
		}).Warning("Could not archive retired log")
	}
}
