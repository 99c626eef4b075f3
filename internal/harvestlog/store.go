// Package harvestlog is the durable append-only store the engines write
// their results to. Each log name maps to one file under the store
// directory; every line is terminated with a newline.
package harvestlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log names used by the engines.
const (
	ProbeLog      = "sentinel.csv"
	QueryLog      = "etherhost_log.csv"
	CredentialLog = "eap_exfil.csv"
)

// ErrBusy is returned by TryAppend when another writer holds the store.
var ErrBusy = errors.New("harvestlog: store busy")

// Observer is notified after each line is durably appended.
type Observer func(logName, line string)

// Store serializes open/append/close for all writers.
type Store struct {
	dir string

	mu       sync.Mutex
	observer Observer
}

// Open prepares a store rooted at dir, creating it if needed.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("harvestlog: empty directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string { return s.dir }

// Observe registers fn to be called after successful appends.
func (s *Store) Observe(fn Observer) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Append writes line to logName, waiting for other writers.
func (s *Store) Append(logName string, line []byte) bool {
	s.mu.Lock()
	return s.appendLocked(logName, line) == nil
}

// TryAppend writes line only if no other writer holds the store.
func (s *Store) TryAppend(logName string, line []byte) error {
	if !s.mu.TryLock() {
		return ErrBusy
	}
	return s.appendLocked(logName, line)
}

// appendLocked is entered with s.mu held and releases it.
func (s *Store) appendLocked(logName string, line []byte) error {
	obs := s.observer
	err := s.write(logName, line)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if obs != nil {
		obs(logName, string(line))
	}
	return nil
}

func (s *Store) write(logName string, line []byte) error {
	path, err := s.path(logName)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", logName, err)
	}
	buf := make([]byte, 0, len(line)+1)
	buf = append(append(buf, line...), '\n')
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", logName, err)
	}
	return f.Close()
}

// ReadLines returns every line of logName. A missing log is empty.
func (s *Store) ReadLines(logName string) ([]string, error) {
	path, err := s.path(logName)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := sc.Text(); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func (s *Store) path(logName string) (string, error) {
	if logName == "" || strings.ContainsAny(logName, `/\`) || logName == ".." {
		return "", fmt.Errorf("invalid log name %q", logName)
	}
	return filepath.Join(s.dir, logName), nil
}

// NonBlocking adapts a Store for the radio capture path: contention drops
// the line instead of waiting.
type NonBlocking struct {
	Store *Store
}

func (n NonBlocking) Append(logName string, line []byte) bool {
	return n.Store.TryAppend(logName, line) == nil
}
