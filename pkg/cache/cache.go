package cache

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkcheck/pkg/models"
	"linkcheck/pkg/utils"
)

// Entry is one persisted cache record.
type Entry struct {
	Fingerprint string
	Class       string // numeric status code or "error"
	LastChecked time.Time
}

// Store is the on-disk response cache. Lookups are served from an in-memory
// map loaded once at startup; writes flow through a single writer goroutine
// fed by a channel so concurrent checkers never contend on the file.
type Store struct {
	path        string
	maxAge      time.Duration
	exclude     map[string]bool // status classes never persisted nor reused
	accepted    func(int) bool

	mu      sync.RWMutex
	entries map[string]Entry
	dirty   bool

	ch     chan Entry
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once

	// disabled is set after the first I/O failure; the cache degrades to a
	// no-op for the rest of the run.
	disabled bool
	log      *logrus.Entry
}

// New opens (or initializes) the cache at path. Entries older than maxAge
// are dropped on load. excludeClasses lists status classes that are neither
// persisted nor reused. accepted decides whether a numeric class replays as
// Ok; it mirrors the client's accept set.
func New(path string, maxAge time.Duration, excludeClasses []string, accepted func(int) bool, log *logrus.Entry) *Store {
	ex := make(map[string]bool, len(excludeClasses))
	for _, c := range excludeClasses {
		ex[strings.TrimSpace(c)] = true
	}
	s := &Store{
		path:     path,
		maxAge:   maxAge,
		exclude:  ex,
		accepted: accepted,
		entries:  make(map[string]Entry),
		ch:       make(chan Entry, 256),
		done:     make(chan struct{}),
		log:      log,
	}
	if err := s.load(); err != nil {
		// Cache I/O degrades silently after a single warning
		log.Warnf("Cache disabled for this run: %v", err)
		s.disabled = true
	}
	s.wg.Add(1)
	go s.writer()
	return s
}

// load reads the line-delimited cache file. Each line is
// "URI,status_class,timestamp_seconds". The URI may itself contain commas,
// so the line is split from the right. Unrecognized classes are ignored.
func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: %v", utils.ErrCacheIO, err)
	}
	defer f.Close()

	now := time.Now()
	loaded, skipped := 0, 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entry, ok := parseLine(line)
		if !ok {
			skipped++
			continue
		}
		if s.maxAge > 0 && now.Sub(entry.LastChecked) > s.maxAge {
			skipped++
			continue
		}
		if s.exclude[entry.Class] {
			skipped++
			// Rewrite the file on Close so the excluded line leaves the disk too.
			s.dirty = true
			continue
		}
		s.entries[entry.Fingerprint] = entry
		loaded++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: %v", utils.ErrCacheIO, err)
	}
	s.log.WithFields(logrus.Fields{"loaded": loaded, "skipped": skipped}).Debug("Cache loaded")
	return nil
}

func parseLine(line string) (Entry, bool) {
	// Split from the right: the last two fields are class and timestamp
	i := strings.LastIndexByte(line, ',')
	if i < 0 {
		return Entry{}, false
	}
	j := strings.LastIndexByte(line[:i], ',')
	if j < 0 {
		return Entry{}, false
	}
	fingerprint := line[:j]
	class := strings.TrimSpace(line[j+1 : i])
	tsStr := strings.TrimSpace(line[i+1:])

	if fingerprint == "" || !validClass(class) {
		return Entry{}, false
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return Entry{}, false
	}
	return Entry{Fingerprint: fingerprint, Class: class, LastChecked: time.Unix(ts, 0)}, true
}

func validClass(class string) bool {
	if class == "error" {
		return true
	}
	code, err := strconv.Atoi(class)
	return err == nil && code >= 100 && code <= 999
}

// Lookup returns the replayable status for a fingerprint, if present.
func (s *Store) Lookup(fingerprint string) (models.Status, bool) {
	if s.disabled {
		return models.Status{}, false
	}
	s.mu.RLock()
	entry, ok := s.entries[fingerprint]
	s.mu.RUnlock()
	if !ok {
		return models.Status{}, false
	}
	code, _ := strconv.Atoi(entry.Class)
	return models.StatusFromCacheClass(entry.Class, code, s.accepted)
}

// Put records a fresh check result. Statuses whose class is empty or
// excluded are not persisted. Safe for concurrent use; the entry is handed
// to the writer goroutine and becomes visible to Lookup once the writer has
// stored it.
func (s *Store) Put(fingerprint string, status models.Status) {
	if s.disabled || status.Cached {
		return
	}
	class := status.CacheClass()
	if class == "" || s.exclude[class] {
		return
	}
	entry := Entry{Fingerprint: fingerprint, Class: class, LastChecked: time.Now()}
	select {
	case s.ch <- entry:
	case <-s.done:
	}
}

// writer owns all map mutation for incoming entries.
func (s *Store) writer() {
	defer s.wg.Done()
	for {
		select {
		case entry := <-s.ch:
			s.mu.Lock()
			s.entries[entry.Fingerprint] = entry
			s.dirty = true
			s.mu.Unlock()
		case <-s.done:
			// Drain whatever is still queued
			for {
				select {
				case entry := <-s.ch:
					s.mu.Lock()
					s.entries[entry.Fingerprint] = entry
					s.dirty = true
					s.mu.Unlock()
				default:
					return
				}
			}
		}
	}
}

// Close drains the writer goroutine, then flushes the in-memory entries to
// disk with a write-then-rename so a crash never leaves a torn cache file.
func (s *Store) Close() error {
	var err error
	s.closed.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.disabled {
			return
		}
		err = s.persist()
	})
	return err
}

func (s *Store) persist() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.dirty {
		return nil
	}

	tmp := filepath.Join(filepath.Dir(s.path), fmt.Sprintf(".%s.%s.tmp", filepath.Base(s.path), uuid.NewString()))
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrCacheIO, err)
	}
	w := bufio.NewWriter(f)
	for _, entry := range s.entries {
		fmt.Fprintf(w, "%s,%s,%d\n", entry.Fingerprint, entry.Class, entry.LastChecked.Unix())
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", utils.ErrCacheIO, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", utils.ErrCacheIO, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", utils.ErrCacheIO, err)
	}
	s.log.WithField("entries", len(s.entries)).Debug("Cache persisted")
	return nil
}

// Len returns the number of resident entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
