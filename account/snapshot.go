package account

import (
	"github.com/appuploader/grandslam/anisette"
	"github.com/appuploader/grandslam/gsa"
	"github.com/appuploader/grandslam/gsaerr"
)

// Snapshot is everything needed to bring an account back without a new login. Persisting it
// is up to the caller.
type Snapshot struct {
	Email    string                  `json:"email"`
	Identity anisette.Identity       `json:"identity"`
	Session  *gsa.SessionPackage     `json:"session,omitempty"`
	Tokens   map[string]gsa.AppToken `json:"tokens,omitempty"`
}

func (a *Account) Snapshot() Snapshot {
	return Snapshot{
		Email:    a.email,
		Identity: a.Identity(),
		Session:  a.Session(),
		Tokens:   a.tokens.Tokens(),
	}
}

// Restore builds an account from snap. A stored session must still be well formed.
func Restore(snap Snapshot, opts Options) (*Account, error) {
	if snap.Email == "" || len(snap.Identity.Identifier) == 0 {
		return nil, gsaerr.Protocol(nil, "snapshot has no email or identity")
	}
	a := New(snap.Email, snap.Identity, opts)
	if snap.Session != nil {
		if err := snap.Session.Validate(); err != nil {
			return nil, err
		}
		a.tokens.Restore(snap.Session, snap.Tokens)
	}
	return a, nil
}
