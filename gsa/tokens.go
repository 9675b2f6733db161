package gsa

import (
	"bytes"
	"errors"
	"sync"
	"time"

	"github.com/appuploader/grandslam/gsacrypto"
	"github.com/appuploader/grandslam/gsaerr"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	envelopeTag    = "XYZ"
	envelopeMinLen = len(envelopeTag) + gsacrypto.GCMIVSize + gsacrypto.GCMTagLen
)

// TokenManager issues and caches app tokens for the session it holds. Concurrent requests
// for one app id share a single issuance round trip.
type TokenManager struct {
	transport *Transport
	now       func() time.Time

	mu      sync.RWMutex
	session *SessionPackage
	tokens  map[string]AppToken

	issuing singleflight.Group
}

func NewTokenManager(transport *Transport) *TokenManager {
	return &TokenManager{transport: transport, now: time.Now, tokens: map[string]AppToken{}}
}

// SetSession installs a new session and drops every token issued under the previous one.
func (m *TokenManager) SetSession(session *SessionPackage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	m.tokens = map[string]AppToken{}
}

func (m *TokenManager) Session() *SessionPackage {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// Tokens copies the cache, expired entries included.
func (m *TokenManager) Tokens() map[string]AppToken {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]AppToken, len(m.tokens))
	for k, v := range m.tokens {
		out[k] = v
	}
	return out
}

// Restore reinstalls a persisted session with its token cache.
func (m *TokenManager) Restore(session *SessionPackage, tokens map[string]AppToken) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	m.tokens = make(map[string]AppToken, len(tokens))
	for k, v := range tokens {
		m.tokens[k] = v
	}
}

func (m *TokenManager) cached(appID string) (AppToken, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[appID]
	if ok && t.ValidAt(m.now()) {
		return t, true
	}
	return AppToken{}, false
}

// AppToken returns the cached token for appID while it is unexpired and otherwise asks GSA
// for a new one.
func (m *TokenManager) AppToken(appID string) (AppToken, error) {
	if appID == "" {
		return AppToken{}, gsaerr.Protocol(nil, "app id is required")
	}
	if t, ok := m.cached(appID); ok {
		return t, nil
	}
	session := m.Session()
	if session == nil {
		return AppToken{}, gsaerr.SessionMissing("no session for app token %s, login first", appID)
	}
	v, err, _ := m.issuing.Do(appID, func() (any, error) {
		if t, ok := m.cached(appID); ok {
			return t, nil
		}
		return m.issue(session, appID)
	})
	if err != nil {
		appTokenRequests.WithLabelValues("error").Inc()
		return AppToken{}, err
	}
	return v.(AppToken), nil
}

// checksum is HMAC-SHA256(sk, "apptokens" || adsid || appID).
func checksum(sk []byte, adsid, appID string) []byte {
	data := make([]byte, 0, len("apptokens")+len(adsid)+len(appID))
	data = append(data, "apptokens"...)
	data = append(data, adsid...)
	data = append(data, appID...)
	return gsacrypto.HMACSHA256(sk, data)
}

func (m *TokenManager) issue(session *SessionPackage, appID string) (AppToken, error) {
	if len(session.SessionKey) != gsacrypto.KeySize {
		return AppToken{}, gsaerr.Protocol(nil, "session key has %d bytes, want %d", len(session.SessionKey), gsacrypto.KeySize)
	}
	t := m.transport
	h, err := t.Anisette.Headers()
	if err != nil {
		return AppToken{}, err
	}
	if h.ClientInfo == "" {
		return AppToken{}, gsaerr.Protocol(nil, "anisette headers have no client info")
	}
	headers := map[string]string{
		"Content-Type":      ContentTypePlist,
		"Accept":            "*/*",
		"X-MMe-Client-Info": h.ClientInfo,
		"User-Agent":        UserAgentAKD,
	}
	resp, err := postService[appTokensResponse](t, appTokensRequest{
		Apps:      []string{appID},
		Cookie:    session.Cookie,
		Operation: "apptokens",
		Token:     session.GsIdmsToken,
		Adsid:     session.Adsid,
		Checksum:  checksum(session.SessionKey, session.Adsid, appID),
		CPD:       newCPD(h),
	}, headers)
	if err != nil {
		return AppToken{}, err
	}
	if len(resp.EncryptedToken) == 0 {
		return AppToken{}, gsaerr.Protocol(nil, "response has no et")
	}
	payload, err := openTokenEnvelope(session.SessionKey, resp.EncryptedToken)
	if err != nil {
		return AppToken{}, err
	}
	token, ok := payload.Tokens[appID]
	if !ok || token.Token == "" {
		return AppToken{}, gsaerr.Protocol(nil, "token payload has no token for %s", appID)
	}
	if !token.ValidAt(m.now()) {
		return AppToken{}, gsaerr.Protocol(nil, "token for %s issued already expired at %s", appID, token.ExpiresAt().Format(time.RFC3339))
	}

	m.mu.Lock()
	if m.session == session {
		for id, tk := range payload.Tokens {
			m.tokens[id] = tk
		}
	}
	m.mu.Unlock()
	appTokenRequests.WithLabelValues("ok").Inc()
	log.Debugf("issued app token for %s, expires %s", appID, token.ExpiresAt().Format(time.RFC3339))
	return token, nil
}

/*
openTokenEnvelope decrypts "XYZ" || iv(16) || ciphertext || tag(16) with AES-GCM under sk,
using the three byte tag as additional data.
*/
func openTokenEnvelope(sk, envelope []byte) (*appTokensPayload, error) {
	if len(envelope) < envelopeMinLen {
		return nil, gsaerr.TokenFormat("token envelope has %d bytes", len(envelope))
	}
	if !bytes.Equal(envelope[:len(envelopeTag)], []byte(envelopeTag)) {
		return nil, gsaerr.TokenFormat("token envelope starts with %q", envelope[:len(envelopeTag)])
	}
	aad := envelope[:len(envelopeTag)]
	iv := envelope[len(envelopeTag) : len(envelopeTag)+gsacrypto.GCMIVSize]
	plaintext, err := gsacrypto.DecryptGCM(sk, iv, aad, envelope[len(envelopeTag)+gsacrypto.GCMIVSize:])
	if err != nil {
		if errors.Is(err, gsacrypto.ErrAuthenticationFailed) {
			return nil, gsaerr.Integrity(err, "token envelope")
		}
		return nil, gsaerr.Protocol(err, "decrypt token envelope")
	}
	var payload appTokensPayload
	if err := unmarshalFragment(plaintext, &payload); err != nil {
		return nil, gsaerr.Protocol(err, "parse token payload")
	}
	if payload.Tokens == nil {
		return nil, gsaerr.Protocol(nil, "token payload has no t")
	}
	return &payload, nil
}
