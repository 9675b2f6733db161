// Package storage persists account snapshots between runs.
package storage

import (
	"errors"
	"strings"

	"github.com/appuploader/grandslam/account"
)

var ErrNotFound = errors.New("storage: no snapshot for account")

// SnapshotStore saves and loads account snapshots keyed by email.
type SnapshotStore interface {
	Load(email string) (*account.Snapshot, error)
	Save(snap account.Snapshot) error
	Delete(email string) error
	Close() error
}

func key(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
