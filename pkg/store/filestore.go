package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	aterrors "github.com/airtimehq/airtime/pkg/errors"
	"github.com/airtimehq/airtime/pkg/meeting"
)

// FileStore persists records as JSON files in a data directory. It is the
// default backend; both processes on one machine share the directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the data directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

// write marshals v and atomically replaces the record file.
func (s *FileStore) write(key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", aterrors.ErrStorageWrite, key, err)
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", aterrors.ErrStorageWrite, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", aterrors.ErrStorageWrite, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", aterrors.ErrStorageWrite, err)
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", aterrors.ErrStorageWrite, err)
	}
	return nil
}

// read unmarshals the record file into v.
func (s *FileStore) read(key string, v interface{}) error {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", aterrors.ErrNotFound, key)
		}
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", aterrors.ErrMalformed, key, err)
	}
	return nil
}

// SaveCurrentMeeting persists the in-progress meeting.
func (s *FileStore) SaveCurrentMeeting(_ context.Context, m *meeting.Meeting) error {
	return s.write(KeyCurrentMeeting, m)
}

// LoadCurrentMeeting returns the in-progress meeting.
func (s *FileStore) LoadCurrentMeeting(_ context.Context) (*meeting.Meeting, error) {
	var m meeting.Meeting
	if err := s.read(KeyCurrentMeeting, &m); err != nil {
		return nil, err
	}
	m.Normalize()
	return &m, nil
}

// SaveCompletedMeeting persists the finalized meeting.
func (s *FileStore) SaveCompletedMeeting(_ context.Context, m *meeting.Meeting) error {
	return s.write(KeyCompletedMeeting, m)
}

// LoadCompletedMeeting returns the finalized meeting.
func (s *FileStore) LoadCompletedMeeting(_ context.Context) (*meeting.Meeting, error) {
	var m meeting.Meeting
	if err := s.read(KeyCompletedMeeting, &m); err != nil {
		return nil, err
	}
	m.Normalize()
	return &m, nil
}

// SaveSetupData persists the setup record.
func (s *FileStore) SaveSetupData(_ context.Context, data *SetupData) error {
	return s.write(KeySetupMeetingData, data)
}

// LoadSetupData returns the setup record.
func (s *FileStore) LoadSetupData(_ context.Context) (*SetupData, error) {
	var data SetupData
	if err := s.read(KeySetupMeetingData, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Clear removes all meeting records.
func (s *FileStore) Clear(_ context.Context) error {
	for _, key := range []string{KeyCurrentMeeting, KeySetupMeetingData, KeyCompletedMeeting} {
		if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", key, err)
		}
	}
	return nil
}
