package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	DefaultStorageFileName = ".hub-settle-journal.json"
)

// Storage handles persistence of journal records
type Storage struct {
	filePath string
	mu       sync.RWMutex
	records  map[string]*Record
}

// fileFormat represents the JSON structure for storage
type fileFormat struct {
	Records map[string]*Record `json:"records"`
}

// NewStorage opens the journal file, defaulting to the home directory
func NewStorage(filePath string) (*Storage, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultStorageFileName)
	}

	storage := &Storage{
		filePath: filePath,
		records:  make(map[string]*Record),
	}

	if err := storage.load(); err != nil {
		// A missing file is created on first save
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load journal: %w", err)
		}
	}

	return storage, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	var stored fileFormat
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to unmarshal journal: %w", err)
	}

	s.records = stored.Records
	if s.records == nil {
		s.records = make(map[string]*Record)
	}
	return nil
}

// saveLocked writes all records. The caller holds the write lock.
func (s *Storage) saveLocked() error {
	data, err := json.MarshalIndent(fileFormat{Records: s.records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Write to a temporary file first, then rename for an atomic replace
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Create adds a new record
func (s *Storage) Create(record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return fmt.Errorf("record '%s' already exists", record.ID)
	}
	s.records[record.ID] = record.clone()
	return s.saveLocked()
}

// Get returns a copy of the record with id
func (s *Storage) Get(id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("record '%s' not found", id)
	}
	return record.clone(), nil
}

// Modify applies fn to the stored record under the write lock and saves
func (s *Storage) Modify(id string, fn func(*Record)) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, exists := s.records[id]
	if !exists {
		return nil, fmt.Errorf("record '%s' not found", id)
	}
	fn(record)
	if err := s.saveLocked(); err != nil {
		return nil, err
	}
	return record.clone(), nil
}

// Delete removes a record
func (s *Storage) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[id]; !exists {
		return fmt.Errorf("record '%s' not found", id)
	}
	delete(s.records, id)
	return s.saveLocked()
}

// List returns all records, oldest first
func (s *Storage) List() []*Record {
	return s.filter(func(*Record) bool { return true })
}

// ListByStage returns records in any of stages, oldest first
func (s *Storage) ListByStage(stages ...Stage) []*Record {
	return s.filter(func(r *Record) bool {
		for _, stage := range stages {
			if r.Stage == stage {
				return true
			}
		}
		return false
	})
}

func (s *Storage) filter(keep func(*Record) bool) []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*Record, 0, len(s.records))
	for _, record := range s.records {
		if keep(record) {
			records = append(records, record.clone())
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Created.Before(records[j].Created)
	})
	return records
}

// Count returns the total number of records
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// FilePath returns the storage file path
func (s *Storage) FilePath() string {
	return s.filePath
}
