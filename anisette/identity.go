// Package anisette produces the synthetic device identity headers Apple account services
// expect on every request.
package anisette

import (
	"encoding/hex"
	"strings"

	"github.com/appuploader/grandslam/gsacrypto"
	"github.com/google/uuid"
)

// Identity is one provisioned virtual device. It is created once, persisted by the caller
// and never changed by this package.
type Identity struct {
	Identifier       []byte `json:"identifier"` //raw keychain identifier, base64 on the wire
	ProvisioningBlob []byte `json:"adi_pb"`
}

// NewIdentity draws a fresh 16 byte keychain identifier for an already provisioned blob.
func NewIdentity(provisioningBlob []byte) Identity {
	id := uuid.New()
	return Identity{Identifier: id[:], ProvisioningBlob: provisioningBlob}
}

// LocalUserID is X-Apple-I-MD-LU, the upper case hex SHA-256 of the identifier.
func (id Identity) LocalUserID() string {
	return strings.ToUpper(hex.EncodeToString(gsacrypto.SHA256(id.Identifier)))
}

// DeviceID is X-Mme-Device-Id, the identifier's hex grouped 8-4-4-4-12. Shorter identifiers
// yield shorter groups.
func (id Identity) DeviceID() string {
	h := hex.EncodeToString(id.Identifier)
	groups := []string{
		substr(h, 0, 8),
		substr(h, 8, 4),
		substr(h, 12, 4),
		substr(h, 16, 4),
		substr(h, 20, 12),
	}
	return strings.ToUpper(strings.Join(groups, "-"))
}

func substr(s string, start, length int) string {
	if start >= len(s) {
		return ""
	}
	end := start + length
	if end > len(s) {
		end = len(s)
	}
	return s[start:end]
}
