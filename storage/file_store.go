package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gitee.com/kxapp/kxapp-common/utilz"
	"github.com/appuploader/grandslam/account"
)

// DefaultDir is ~/grandslam/accounts, or ./grandslam/accounts without a home directory.
func DefaultDir() string {
	h, e := os.UserHomeDir()
	if e != nil {
		h = "./"
	}
	return filepath.Join(h, "grandslam", "accounts")
}

// FileStore keeps one JSON file per account. A non empty password obfuscates the files.
type FileStore struct {
	dir      string
	password string
}

func NewFileStore(dir, password string) (*FileStore, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{dir: dir, password: password}, nil
}

func (s *FileStore) path(email string) string {
	return filepath.Join(s.dir, key(email)+".json")
}

func (s *FileStore) Load(email string) (*account.Snapshot, error) {
	p := s.path(email)
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	snap, err := utilz.ReadFromJsonFileSec[account.Snapshot](p, s.password)
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", p, err)
	}
	return snap, nil
}

func (s *FileStore) Save(snap account.Snapshot) error {
	if snap.Email == "" {
		return fmt.Errorf("snapshot has no email")
	}
	return utilz.WriteToJsonFileSec(s.path(snap.Email), snap, s.password)
}

func (s *FileStore) Delete(email string) error {
	err := os.Remove(s.path(email))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *FileStore) Close() error {
	return nil
}
