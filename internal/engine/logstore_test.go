package engine

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/quick"

	"github.com/andreyvit/diff"
	"github.com/google/go-cmp/cmp"
	"github.com/nicolagi/kvs/internal/kverr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLogStoreSetGetRemove(t *testing.T) {
	s, err := OpenLogStore(t.TempDir())
	require.Nil(t, err)
	defer func() { _ = s.Close() }()

	_, found, err := s.Get("a")
	require.Nil(t, err)
	assert.False(t, found)

	require.Nil(t, s.Set("a", "1"))
	v, found, err := s.Get("a")
	require.Nil(t, err)
	require.True(t, found)
	assert.Equal(t, "1", v)

	require.Nil(t, s.Set("a", "2"))
	v, _, err = s.Get("a")
	require.Nil(t, err)
	assert.Equal(t, "2", v)

	require.Nil(t, s.Remove("a"))
	_, found, err = s.Get("a")
	require.Nil(t, err)
	assert.False(t, found)
}

func TestLogStoreRemoveMissingKey(t *testing.T) {
	s, err := OpenLogStore(t.TempDir())
	require.Nil(t, err)
	defer func() { _ = s.Close() }()

	t.Run("never set", func(t *testing.T) {
		err := s.Remove("missing")
		require.NotNil(t, err)
		assert.Equal(t, kverr.KeyNotFound, kverr.KindOf(err))
	})
	t.Run("set then removed", func(t *testing.T) {
		require.Nil(t, s.Set("a", "1"))
		require.Nil(t, s.Remove("a"))
		err := s.Remove("a")
		require.NotNil(t, err)
		assert.Equal(t, kverr.KeyNotFound, kverr.KindOf(err))
	})
	t.Run("no tombstone was appended", func(t *testing.T) {
		// Only Set a, Rm a so far.
		_, count, err := replay(s.path)
		require.Nil(t, err)
		assert.Equal(t, 2, count)
	})
}

func TestLogStoreRecovery(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenLogStore(dir)
	require.Nil(t, err)
	require.Nil(t, s.Set("x", "foo"))
	require.Nil(t, s.Set("x", "bar"))
	require.Nil(t, s.Set("y", "baz"))
	require.Nil(t, s.Remove("y"))
	require.Nil(t, s.Close())

	s, err = OpenLogStore(dir)
	require.Nil(t, err)
	defer func() { _ = s.Close() }()
	v, found, err := s.Get("x")
	require.Nil(t, err)
	require.True(t, found)
	assert.Equal(t, "bar", v)
	_, found, err = s.Get("y")
	require.Nil(t, err)
	assert.False(t, found)
	assert.Equal(t, 4, s.nextPos)
}

func TestLogStoreOpenMissingDirectoryYieldsEmptyStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does", "not", "exist", "yet")
	s, err := OpenLogStore(dir)
	require.Nil(t, err)
	defer func() { _ = s.Close() }()
	assert.Equal(t, 0, s.Len())
	fi, err := os.Stat(filepath.Join(dir, logFileName))
	require.Nil(t, err)
	assert.True(t, fi.Mode().IsRegular())
}

func TestLogStoreOpenRejectsNonRegularFile(t *testing.T) {
	dir := t.TempDir()
	require.Nil(t, os.Mkdir(filepath.Join(dir, logFileName), 0700))
	_, err := OpenLogStore(dir)
	require.NotNil(t, err)
	assert.Equal(t, kverr.IO, kverr.KindOf(err))
}

func TestLogStoreOpenRejectsTrailingGarbage(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenLogStore(dir)
	require.Nil(t, err)
	require.Nil(t, s.Set("a", "1"))
	require.Nil(t, s.Close())

	f, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_WRONLY|os.O_APPEND, 0600)
	require.Nil(t, err)
	_, err = f.WriteString(`{"Set":["b"` + "\n")
	require.Nil(t, err)
	require.Nil(t, f.Close())

	_, err = OpenLogStore(dir)
	require.NotNil(t, err)
	assert.Equal(t, kverr.Serde, kverr.KindOf(err))
}

// The in-memory index must always equal the fold over the log file rebuilt
// from scratch, whatever sequence of sets and removes got us here.
func TestLogStoreIndexEqualsReplay(t *testing.T) {
	f := func(seed int64, n uint8) bool {
		s, err := OpenLogStore(t.TempDir())
		if err != nil {
			t.Log(err)
			return false
		}
		defer func() { _ = s.Close() }()
		rnd := rand.New(rand.NewSource(seed))
		for i := 0; i < int(n); i++ {
			key := fmt.Sprintf("key%d", rnd.Intn(8))
			if rnd.Intn(3) == 0 {
				if err := s.Remove(key); err != nil && !kverr.IsKind(err, kverr.KeyNotFound) {
					t.Log(err)
					return false
				}
			} else if err := s.Set(key, fmt.Sprintf("value%d", i)); err != nil {
				t.Log(err)
				return false
			}
		}
		rebuilt, count, err := replay(s.path)
		if err != nil {
			t.Log(err)
			return false
		}
		if count != s.nextPos {
			t.Logf("log has %d records, nextPos is %d", count, s.nextPos)
			return false
		}
		if d := cmp.Diff(rebuilt, s.index); d != "" {
			t.Log(d)
			return false
		}
		return true
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

func TestLogStoreConcurrentDistinctWriters(t *testing.T) {
	const writers = 8
	const perWriter = 64
	dir := t.TempDir()
	s, err := OpenLogStore(dir)
	require.Nil(t, err)

	var g errgroup.Group
	for w := 0; w < writers; w++ {
		w := w
		g.Go(func() error {
			for i := 0; i < perWriter; i++ {
				if err := s.Set(fmt.Sprintf("key-%d-%d", w, i), fmt.Sprintf("%d", i)); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.Nil(t, g.Wait())
	assert.Equal(t, writers*perWriter, s.Len())
	assert.Equal(t, writers*perWriter, s.nextPos)
	require.Nil(t, s.Close())

	// Recovery sees every write.
	s, err = OpenLogStore(dir)
	require.Nil(t, err)
	defer func() { _ = s.Close() }()
	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			v, found, err := s.Get(fmt.Sprintf("key-%d-%d", w, i))
			require.Nil(t, err)
			require.True(t, found)
			require.Equal(t, fmt.Sprintf("%d", i), v)
		}
	}
}

func TestLogStoreConcurrentReadersAndWriter(t *testing.T) {
	s, err := OpenLogStore(t.TempDir())
	require.Nil(t, err)
	defer func() { _ = s.Close() }()
	require.Nil(t, s.Set("hot", "0"))

	var g errgroup.Group
	g.Go(func() error {
		for i := 1; i <= 100; i++ {
			if err := s.Set("hot", fmt.Sprintf("%d", i)); err != nil {
				return err
			}
		}
		return nil
	})
	for r := 0; r < 4; r++ {
		g.Go(func() error {
			for i := 0; i < 100; i++ {
				_, found, err := s.Get("hot")
				if err != nil {
					return err
				}
				if !found {
					return fmt.Errorf("hot key went missing")
				}
			}
			return nil
		})
	}
	require.Nil(t, g.Wait())
}

func TestSlink(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenLogStore(dir)
	require.Nil(t, err)
	defer func() { _ = s.Close() }()
	for i := 0; i < 10; i++ {
		require.Nil(t, s.Set(fmt.Sprintf("key%d", i), "old"))
	}
	for i := 0; i < 10; i++ {
		require.Nil(t, s.Set(fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i)))
	}
	require.Nil(t, s.Remove("key9"))

	require.Nil(t, s.Slink())

	t.Run("log shrinks to the live records", func(t *testing.T) {
		index, count, err := replay(s.path)
		require.Nil(t, err)
		assert.Equal(t, 9, count)
		assert.Equal(t, 9, len(index))
		assert.Equal(t, 9, s.nextPos)
	})
	t.Run("observations are unchanged", func(t *testing.T) {
		for i := 0; i < 9; i++ {
			v, found, err := s.Get(fmt.Sprintf("key%d", i))
			require.Nil(t, err)
			require.True(t, found)
			assert.Equal(t, fmt.Sprintf("value%d", i), v)
		}
		_, found, err := s.Get("key9")
		require.Nil(t, err)
		assert.False(t, found)
	})
	t.Run("surviving lines keep log order", func(t *testing.T) {
		var want strings.Builder
		for i := 0; i < 9; i++ {
			b, err := setRecord(fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i)).encode()
			require.Nil(t, err)
			want.Write(b)
			want.WriteByte('\n')
		}
		got, err := os.ReadFile(s.path)
		require.Nil(t, err)
		assert.Equal(t, want.String(), string(got), diff.LineDiff(want.String(), string(got)))
	})
	t.Run("no transient file at rest", func(t *testing.T) {
		_, err := os.Stat(filepath.Join(dir, slinkFileName))
		assert.True(t, os.IsNotExist(err))
	})
	t.Run("idempotent", func(t *testing.T) {
		require.Nil(t, s.Slink())
		_, count, err := replay(s.path)
		require.Nil(t, err)
		assert.Equal(t, 9, count)
	})
	t.Run("writes keep working after compaction", func(t *testing.T) {
		require.Nil(t, s.Set("after", "slink"))
		v, found, err := s.Get("after")
		require.Nil(t, err)
		require.True(t, found)
		assert.Equal(t, "slink", v)
	})
}

type archiveCall struct {
	name     string
	contents []byte
}

type fakeArchiver struct {
	calls []archiveCall
	err   error
}

func (a *fakeArchiver) Archive(name string, contents []byte) error {
	if a.err != nil {
		return a.err
	}
	a.calls = append(a.calls, archiveCall{name, contents})
	return nil
}

func TestSlinkArchivesRetiredLog(t *testing.T) {
	arch := &fakeArchiver{}
	s, err := OpenLogStore(t.TempDir(), WithArchiver(arch))
	require.Nil(t, err)
	defer func() { _ = s.Close() }()
	require.Nil(t, s.Set("a", "1"))
	require.Nil(t, s.Set("a", "2"))

	before, err := os.ReadFile(s.path)
	require.Nil(t, err)
	require.Nil(t, s.Slink())

	require.Equal(t, 1, len(arch.calls))
	assert.Equal(t, before, arch.calls[0].contents)
	assert.True(t, strings.HasSuffix(arch.calls[0].name, ".store"))
}

func TestSlinkSurvivesArchiverFailure(t *testing.T) {
	arch := &fakeArchiver{err: fmt.Errorf("bucket on fire")}
	s, err := OpenLogStore(t.TempDir(), WithArchiver(arch))
	require.Nil(t, err)
	defer func() { _ = s.Close() }()
	require.Nil(t, s.Set("a", "1"))
	require.Nil(t, s.Slink())
	v, found, err := s.Get("a")
	require.Nil(t, err)
	require.True(t, found)
	assert.Equal(t, "1", v)
}

func TestGetDetectsCorruptIndex(t *testing.T) {
	s, err := OpenLogStore(t.TempDir())
	require.Nil(t, err)
	defer func() { _ = s.Close() }()
	require.Nil(t, s.Set("a", "1"))

	// Simulate corruption: point the key at an ordinal past the log end.
	s.imu.Lock()
	s.index["a"] = 7
	s.imu.Unlock()

	_, _, err = s.Get("a")
	require.NotNil(t, err)
	assert.Equal(t, kverr.Index, kverr.KindOf(err))
}
