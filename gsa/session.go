package gsa

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/appuploader/grandslam/gsacrypto"
	"github.com/appuploader/grandslam/gsaerr"
	"howett.net/plist"
)

// SessionPackage is the decrypted server provided data of a successful handshake.
type SessionPackage struct {
	Adsid        string `plist:"adsid" json:"adsid"` //alternate directory services id
	GsIdmsToken  string `plist:"GsIdmsToken" json:"GsIdmsToken"`
	SessionKey   []byte `plist:"sk" json:"sk"`
	Cookie       []byte `plist:"c" json:"c"`
	AccountName  string `plist:"acname" json:"acname"`
	PrimaryEmail string `plist:"primaryEmail" json:"primaryEmail"`
	DsPrsId      int    `plist:"DsPrsId" json:"DsPrsId"`
	FirstName    string `plist:"fn" json:"fn,omitempty"`
	LastName     string `plist:"ln" json:"ln,omitempty"`
	StatusCode   int    `plist:"status-code" json:"statusCode,omitempty"`
}

// Email prefers the primary email over the account name.
func (s *SessionPackage) Email() string {
	if s.PrimaryEmail != "" {
		return s.PrimaryEmail
	}
	return s.AccountName
}

// IdentityToken is base64(adsid:GsIdmsToken), the X-Apple-Identity-Token of 2FA calls.
func (s *SessionPackage) IdentityToken() string {
	return base64.StdEncoding.EncodeToString([]byte(s.Adsid + ":" + s.GsIdmsToken))
}

// Validate checks the fields every later request depends on.
func (s *SessionPackage) Validate() error {
	if s.Adsid == "" || s.GsIdmsToken == "" {
		return gsaerr.Protocol(nil, "session payload has no adsid or GsIdmsToken")
	}
	if len(s.SessionKey) != gsacrypto.KeySize {
		return gsaerr.Protocol(nil, "session key has %d bytes, want %d", len(s.SessionKey), gsacrypto.KeySize)
	}
	if len(s.Cookie) == 0 {
		return gsaerr.Protocol(nil, "session payload has no c")
	}
	return nil
}

// AppToken is a bearer credential scoped to one application identifier.
type AppToken struct {
	Token    string `plist:"token" json:"token"`
	Expiry   int64  `plist:"expiry" json:"expiry"` //unix milliseconds
	Duration int    `plist:"duration" json:"duration"`
}

func (t AppToken) ValidAt(now time.Time) bool {
	return t.Token != "" && t.Expiry > now.UnixMilli()
}

func (t AppToken) ExpiresAt() time.Time {
	return time.UnixMilli(t.Expiry)
}

// unmarshalFragment decodes a decrypted plist, which may come without the plist root.
func unmarshalFragment(data []byte, v any) error {
	if !bytes.Contains(data, []byte("<plist")) && !bytes.HasPrefix(data, []byte("bplist")) {
		wrapped := make([]byte, 0, len(data)+16)
		wrapped = append(wrapped, "<plist>"...)
		wrapped = append(wrapped, data...)
		wrapped = append(wrapped, "</plist>"...)
		data = wrapped
	}
	if _, err := plist.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode plist payload: %w", err)
	}
	return nil
}
