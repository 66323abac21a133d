package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/benbjohnson/immutable"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamsxin/kvs"
)

// defaultCompactionThreshold is the uncompacted-byte watermark (§3) that
// triggers compaction: 1 MiB.
const defaultCompactionThreshold = 1024 * 1024

var logFilePattern = regexp.MustCompile(`^(\d+)\.log$`)

// IndexEntry identifies one command record: the generation it lives in,
// its byte offset within that generation's file, and its encoded length.
type IndexEntry struct {
	Gen    uint64
	Offset int64
	Length int64
}

// Option configures a KVStore at Open time, following the functional
// options idiom the teacher uses for WAL construction (walOpt).
type Option func(*engineState)

// WithLogger sets the structured logger used for compaction and recovery
// diagnostics. Defaults to a no-op logger.
func WithLogger(logger log.Logger) Option {
	return func(s *engineState) { s.logger = logger }
}

// WithCompactionThreshold overrides the uncompacted-byte watermark that
// triggers compaction. Defaults to 1 MiB.
func WithCompactionThreshold(n int64) Option {
	return func(s *engineState) { s.threshold = n }
}

// WithMetricsRegisterer registers the engine's counters with reg instead
// of a private, unregistered registry.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(s *engineState) { s.metrics = newEngineMetrics(reg) }
}

// countingWriter wraps a buffered writer and tracks the total number of
// bytes written to it, the same role the teacher's MyWriter-equivalent
// offset tracking plays for the Rust source's append writer.
type countingWriter struct {
	buf    *bufio.Writer
	file   *os.File
	offset int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.buf.Write(p)
	w.offset += int64(n)
	return n, err
}

func (w *countingWriter) Flush() error { return w.buf.Flush() }

// engineState is the single mutex-guarded record backing every handle to
// a given store: the writer, the index, the set of open readers-by-gen,
// the current generation, and the uncompacted-byte counter. Per spec.md
// §5 one mutex guards all of it for the entire duration of every public
// operation.
type engineState struct {
	mu sync.Mutex

	dir     string
	index   *immutable.SortedMap[string, IndexEntry]
	readers map[uint64]*os.File

	writer     *countingWriter
	currentGen uint64

	uncompacted int64
	threshold   int64

	logger  log.Logger
	metrics *engineMetrics
}

// KVStore is the log-structured storage engine. It is the cheap,
// shareable handle described in spec.md's Design Notes: copying a
// KVStore by value shares the same underlying engineState, so many
// goroutines can each hold their own KVStore value and still serialize
// correctly through the one mutex inside engineState.
type KVStore struct {
	state *engineState
}

var _ Engine = (*KVStore)(nil)

// Open opens (or creates) a log-structured store rooted at dir, replaying
// every existing segment to rebuild the index before returning.
func Open(dir string, opts ...Option) (*KVStore, error) {
	st := &engineState{
		dir:       dir,
		index:     &immutable.SortedMap[string, IndexEntry]{},
		readers:   make(map[uint64]*os.File),
		threshold: defaultCompactionThreshold,
		logger:    log.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(st)
	}
	if st.metrics == nil {
		st.metrics = newEngineMetrics(prometheus.NewRegistry())
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, kvs.WrapIO(err)
	}

	gens, err := sortedGenerations(dir)
	if err != nil {
		return nil, err
	}

	for _, gen := range gens {
		f, err := os.OpenFile(segmentPath(dir, gen), os.O_RDWR, 0o644)
		if err != nil {
			return nil, kvs.WrapIO(err)
		}
		newIndex, uncompacted, err := loadSegment(gen, f, st.index)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		st.index = newIndex
		st.uncompacted += uncompacted
		st.readers[gen] = f
	}

	activeGen := uint64(0)
	if len(gens) > 0 {
		activeGen = gens[len(gens)-1]
	}
	activeGen++
	if err := st.openActiveSegment(activeGen); err != nil {
		return nil, err
	}

	level.Info(st.logger).Log("msg", "opened store", "dir", dir, "active_gen", activeGen, "segments", len(gens))
	return &KVStore{state: st}, nil
}

// Dir returns the directory this store is rooted at.
func (e *KVStore) Dir() string { return e.state.dir }

// Close releases every open segment file handle. It does not delete any
// data; a subsequent Open of the same directory recovers the same state.
func (e *KVStore) Close() error {
	s := e.state
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writer.Flush(); err != nil {
		return kvs.WrapIO(err)
	}
	var firstErr error
	for _, f := range s.readers {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = kvs.WrapIO(err)
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return nil
}

// Set implements Engine.
func (e *KVStore) Set(key, value string) error {
	s := e.state
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set(key, value)
}

// Get implements Engine.
func (e *KVStore) Get(key string) (string, bool, error) {
	s := e.state
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key)
}

// Remove implements Engine.
func (e *KVStore) Remove(key string) error {
	s := e.state
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(key)
}

func (s *engineState) set(key, value string) error {
	cmd := kvs.SetCommand(key, value)
	encoded, err := cmd.Encode()
	if err != nil {
		return err
	}

	start := s.writer.offset
	if _, err := s.writer.Write(encoded); err != nil {
		return kvs.WrapIO(err)
	}
	if err := s.writer.Flush(); err != nil {
		return kvs.WrapIO(err)
	}
	length := s.writer.offset - start

	old, hadOld := s.index.Get(key)
	s.index = s.index.Set(key, IndexEntry{Gen: s.currentGen, Offset: start, Length: length})
	s.metrics.sets.Inc()
	s.metrics.bytesWritten.Add(float64(length))

	if hadOld {
		s.uncompacted += old.Length
	}
	if s.uncompacted > s.threshold {
		return s.compact()
	}
	return nil
}

func (s *engineState) get(key string) (string, bool, error) {
	s.metrics.gets.Inc()
	entry, ok := s.index.Get(key)
	if !ok {
		return "", false, nil
	}
	f, ok := s.readers[entry.Gen]
	if !ok {
		return "", false, kvs.WrapIO(fmt.Errorf("no reader registered for generation %d", entry.Gen))
	}
	buf := make([]byte, entry.Length)
	if _, err := f.ReadAt(buf, entry.Offset); err != nil {
		return "", false, kvs.WrapIO(err)
	}
	cmd, err := kvs.DecodeCommand(buf)
	if err != nil {
		return "", false, err
	}
	if !cmd.IsSet() {
		return "", false, kvs.ErrCorrupt
	}
	return cmd.Value, true, nil
}

func (s *engineState) remove(key string) error {
	old, ok := s.index.Get(key)
	if !ok {
		s.metrics.keyNotFound.Inc()
		return kvs.ErrKeyNotFound
	}

	cmd := kvs.RemoveCommand(key)
	encoded, err := cmd.Encode()
	if err != nil {
		return err
	}

	start := s.writer.offset
	if _, err := s.writer.Write(encoded); err != nil {
		return kvs.WrapIO(err)
	}
	if err := s.writer.Flush(); err != nil {
		return kvs.WrapIO(err)
	}
	removeLen := s.writer.offset - start

	s.index = s.index.Delete(key)
	s.uncompacted += old.Length + removeLen
	s.metrics.removes.Inc()

	// Unlike set, remove never checks the compaction threshold here: only
	// the write path triggers compaction (spec.md's Write procedure),
	// matching StoreWriter::remove in the original source.
	return nil
}

// compact rewrites every live index entry into a fresh compaction
// segment and redirects the writer to a new active segment two
// generations ahead, per spec.md §4.1. It runs entirely under the
// caller's lock on s.mu.
func (s *engineState) compact() error {
	compactionGen := s.currentGen + 1
	newActiveGen := s.currentGen + 2

	compactFile, err := os.OpenFile(segmentPath(s.dir, compactionGen), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return kvs.WrapIO(err)
	}
	s.readers[compactionGen] = compactFile
	compactWriter := &countingWriter{buf: bufio.NewWriter(compactFile), file: compactFile}

	if err := s.openActiveSegment(newActiveGen); err != nil {
		return err
	}

	newIndex := s.index
	var newPos int64
	it := s.index.Iterator()
	for !it.Done() {
		key, entry, _ := it.Next()
		src, ok := s.readers[entry.Gen]
		if !ok {
			return kvs.WrapIO(fmt.Errorf("no reader registered for generation %d", entry.Gen))
		}
		buf := make([]byte, entry.Length)
		if _, err := src.ReadAt(buf, entry.Offset); err != nil {
			return kvs.WrapIO(err)
		}
		if _, err := compactWriter.Write(buf); err != nil {
			return kvs.WrapIO(err)
		}
		newIndex = newIndex.Set(key, IndexEntry{Gen: compactionGen, Offset: newPos, Length: entry.Length})
		newPos += entry.Length
	}
	if err := compactWriter.Flush(); err != nil {
		return kvs.WrapIO(err)
	}
	s.index = newIndex

	var unlinked int64
	for gen, f := range s.readers {
		if gen >= compactionGen {
			continue
		}
		if fi, err := f.Stat(); err == nil {
			s.metrics.bytesReclaimed.Add(float64(fi.Size()))
		}
		path := segmentPath(s.dir, gen)
		if err := f.Close(); err != nil {
			level.Error(s.logger).Log("msg", "failed to close stale segment", "gen", gen, "err", err)
		}
		delete(s.readers, gen)
		if err := os.Remove(path); err != nil {
			level.Error(s.logger).Log("msg", "failed to remove stale segment", "gen", gen, "err", err)
			continue
		}
		unlinked++
	}

	s.metrics.compactions.Inc()
	s.metrics.segmentsUnlinked.Add(float64(unlinked))
	s.uncompacted = 0
	level.Debug(s.logger).Log("msg", "compacted", "compaction_gen", compactionGen, "new_active_gen", newActiveGen, "segments_unlinked", unlinked)
	return nil
}

// openActiveSegment creates (or reopens) gen's file for read-write
// access, registers it as the current reader for that generation, and
// redirects the writer to it with offset 0.
func (s *engineState) openActiveSegment(gen uint64) error {
	f, err := os.OpenFile(segmentPath(s.dir, gen), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return kvs.WrapIO(err)
	}
	s.readers[gen] = f
	s.writer = &countingWriter{buf: bufio.NewWriter(f), file: f}
	s.currentGen = gen
	return nil
}

// loadSegment replays every command record in f (the file for
// generation gen) into index, returning the updated index and the bytes
// of stale command records accumulated along the way, per spec.md's
// replay rules. A partially written trailing record - the on-disk
// signature of a crash mid-write - is treated as absent rather than
// failing the whole open, since everything before the torn tail is still
// a valid prefix of the log.
func loadSegment(gen uint64, f *os.File, index *immutable.SortedMap[string, IndexEntry]) (*immutable.SortedMap[string, IndexEntry], int64, error) {
	dec := json.NewDecoder(f)
	var uncompacted int64
	currentOffset := dec.InputOffset()
	for {
		var cmd kvs.Command
		err := dec.Decode(&cmd)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if isTruncatedTail(err) {
				break
			}
			return index, 0, kvs.WrapSerde(err)
		}
		newOffset := dec.InputOffset()

		switch {
		case cmd.IsSet():
			if old, ok := index.Get(cmd.Key); ok {
				uncompacted += old.Length
			}
			index = index.Set(cmd.Key, IndexEntry{Gen: gen, Offset: currentOffset, Length: newOffset - currentOffset})
		case cmd.IsRemove():
			if old, ok := index.Get(cmd.Key); ok {
				uncompacted += old.Length
				index = index.Delete(cmd.Key)
			}
			uncompacted += newOffset - currentOffset
		}
		currentOffset = newOffset
	}
	return index, uncompacted, nil
}

// isTruncatedTail reports whether err is the shape json.Decoder returns
// when a stream ends in the middle of a value, i.e. a trailing record
// that was never fully flushed to disk.
func isTruncatedTail(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF)
}

func segmentPath(dir string, gen uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.log", gen))
}

func sortedGenerations(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, kvs.WrapIO(err)
	}
	var gens []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := logFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		gen, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		gens = append(gens, gen)
	}
	sort.Slice(gens, func(i, j int) bool { return gens[i] < gens[j] })
	return gens, nil
}
