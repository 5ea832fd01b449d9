package rawstore

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"p2pwatch/internal/model"
)

// DayLayout is the partition key format for raw and processed files.
const DayLayout = "2006-01-02"

const fileSuffix = ".jsonl.gz"

// Store appends fetch attempts to one gzip JSONL file per market per UTC day.
type Store struct {
	dataDir string
	logger  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a raw store rooted at dataDir.
func New(dataDir string, logger zerolog.Logger) *Store {
	return &Store{
		dataDir: dataDir,
		logger:  logger.With().Str("component", "raw_store").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

// DayOf returns the partition day of t in UTC.
func DayOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDay validates a YYYY-MM-DD day string.
func ParseDay(day string) (time.Time, error) {
	t, err := time.Parse(DayLayout, day)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", day, err)
	}
	return t, nil
}

// Path returns the file a market's attempts for day are appended to.
func (s *Store) Path(day, market string) string {
	return filepath.Join(s.dataDir, "raw", day, fileName(market))
}

func fileName(market string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '_'
		}
		return r
	}, market)
	return cleaned + fileSuffix
}

// Append writes attempt as a single gzip member holding one JSON line.
// Errors are fatal for the caller: a lost write breaks the capture.
func (s *Store) Append(attempt model.FetchAttempt) (string, error) {
	if attempt.FormatVersion == "" {
		attempt.FormatVersion = model.RawFormatVersion
	}

	line, err := json.Marshal(attempt)
	if err != nil {
		return "", fmt.Errorf("marshal fetch attempt: %w", err)
	}

	var member bytes.Buffer
	zw := gzip.NewWriter(&member)
	if _, err := zw.Write(append(line, '\n')); err != nil {
		return "", fmt.Errorf("compress fetch attempt: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("compress fetch attempt: %w", err)
	}

	path := s.Path(DayOf(attempt.TS), attempt.Market)

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create raw dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("open raw file: %w", err)
	}
	if _, err := f.Write(member.Bytes()); err != nil {
		f.Close()
		return "", fmt.Errorf("append raw record: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close raw file: %w", err)
	}

	return path, nil
}

func (s *Store) lockFor(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[path]
	if !ok {
		l = &sync.Mutex{}
		s.locks[path] = l
	}
	return l
}

// Days lists the captured days in ascending order.
func (s *Store) Days() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dataDir, "raw"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list raw days: %w", err)
	}

	days := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := ParseDay(e.Name()); err != nil {
			continue
		}
		days = append(days, e.Name())
	}
	sort.Strings(days)
	return days, nil
}

// ReadDay calls fn for every attempt stored for day across all markets.
// Order within a file is completion order. A missing day yields no calls.
func (s *Store) ReadDay(day string, fn func(model.FetchAttempt) error) error {
	dir := filepath.Join(s.dataDir, "raw", day)
	paths, err := filepath.Glob(filepath.Join(dir, "*"+fileSuffix))
	if err != nil {
		return fmt.Errorf("glob raw files: %w", err)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := s.readFile(path, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) readFile(path string, fn func(model.FetchAttempt) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open raw file: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		s.logger.Warn().Err(err).Str("file", path).Msg("unreadable raw file")
		return nil
	}
	defer zr.Close()

	br := bufio.NewReader(zr)
	lineNo := 0
	for {
		line, readErr := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			lineNo++
			var attempt model.FetchAttempt
			if err := json.Unmarshal(line, &attempt); err != nil {
				s.logger.Warn().Err(err).Str("file", path).Int("line", lineNo).Msg("bad raw line")
			} else if err := fn(attempt); err != nil {
				return err
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				s.logger.Warn().Err(readErr).Str("file", path).Msg("raw file truncated")
			}
			return nil
		}
	}
}
