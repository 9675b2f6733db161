package gsa_test

import (
	"sync"
	"testing"
	"time"

	"github.com/appuploader/grandslam/gsa"
	"github.com/appuploader/grandslam/gsa/gsatest"
	"github.com/appuploader/grandslam/gsaerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenManager(t *testing.T, cfg gsatest.Config) (*gsa.TokenManager, *gsatest.Server) {
	cfg.Username, cfg.Password = testUser, testPassword
	srv := gsatest.New(t, cfg)
	session, transport := login(t, srv)
	m := gsa.NewTokenManager(transport)
	m.SetSession(session)
	return m, srv
}

func TestAppTokenIsCached(t *testing.T) {
	m, srv := tokenManager(t, gsatest.Config{Protocol: gsa.ProtocolS2KFO})

	first, err := m.AppToken(gsa.AppIDXcode)
	require.NoError(t, err)
	second, err := m.AppToken(gsa.AppIDXcode)
	require.NoError(t, err)

	assert.Equal(t, int32(1), srv.TokenRequests.Load())
	assert.Equal(t, gsatest.TokenFor(gsa.AppIDXcode, 1), first.Token)
	assert.Equal(t, first, second)
	assert.True(t, first.ExpiresAt().After(time.Now()))

	h := srv.Headers("apptokens")
	assert.Equal(t, gsatest.ClientInfo, h.Get("X-MMe-Client-Info"))
	assert.Equal(t, gsa.UserAgentAKD, h.Get("User-Agent"))
	assert.Empty(t, h.Get("X-Apple-I-MD-M"))
}

func TestAppTokenCachesEveryReturnedApp(t *testing.T) {
	m, srv := tokenManager(t, gsatest.Config{ExtraApps: []string{"com.apple.gs.itunes"}})

	_, err := m.AppToken(gsa.AppIDXcode)
	require.NoError(t, err)
	assert.Len(t, m.Tokens(), 2)

	other, err := m.AppToken("com.apple.gs.itunes")
	require.NoError(t, err)
	assert.Equal(t, gsatest.TokenFor("com.apple.gs.itunes", 1), other.Token)
	assert.Equal(t, int32(1), srv.TokenRequests.Load())
}

func TestConcurrentAppTokenSharesOneRequest(t *testing.T) {
	m, srv := tokenManager(t, gsatest.Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.AppToken(gsa.AppIDXcode)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), srv.TokenRequests.Load())
}

func TestExpiredTokenIsReissued(t *testing.T) {
	m, srv := tokenManager(t, gsatest.Config{})
	m.Restore(m.Session(), map[string]gsa.AppToken{
		gsa.AppIDXcode: {Token: "stale", Expiry: time.Now().Add(-time.Minute).UnixMilli(), Duration: 3600},
	})

	token, err := m.AppToken(gsa.AppIDXcode)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", token.Token)
	assert.Equal(t, int32(1), srv.TokenRequests.Load())
}

func TestAlreadyExpiredIssueIsRejected(t *testing.T) {
	m, _ := tokenManager(t, gsatest.Config{TokenTTL: -time.Minute})
	_, err := m.AppToken(gsa.AppIDXcode)
	assert.ErrorIs(t, err, gsaerr.ErrProtocol)
	assert.Empty(t, m.Tokens())
}

func TestAppTokenWithoutSession(t *testing.T) {
	srv := gsatest.New(t, gsatest.Config{Username: testUser, Password: testPassword})
	m := gsa.NewTokenManager(newTransport(srv))

	_, err := m.AppToken(gsa.AppIDXcode)
	assert.ErrorIs(t, err, gsaerr.ErrSessionMissing)
	assert.Equal(t, int32(0), srv.TokenRequests.Load())
}

func TestAppTokenServerStatus(t *testing.T) {
	m, _ := tokenManager(t, gsatest.Config{TokenError: -22406})
	_, err := m.AppToken(gsa.AppIDXcode)
	assert.ErrorIs(t, err, gsaerr.ErrAuthentication)
	assert.Contains(t, err.Error(), "token issuance refused")
}

func TestAppTokenEnvelopeWithoutTag(t *testing.T) {
	m, _ := tokenManager(t, gsatest.Config{BadEnvelope: true})
	_, err := m.AppToken(gsa.AppIDXcode)
	assert.ErrorIs(t, err, gsaerr.ErrTokenFormat)
}

func TestAppTokenTamperedEnvelope(t *testing.T) {
	m, _ := tokenManager(t, gsatest.Config{TamperEnvelope: true})
	_, err := m.AppToken(gsa.AppIDXcode)
	assert.ErrorIs(t, err, gsaerr.ErrIntegrity)
	assert.Empty(t, m.Tokens())
}

func TestSetSessionDropsTokens(t *testing.T) {
	m, _ := tokenManager(t, gsatest.Config{})
	_, err := m.AppToken(gsa.AppIDXcode)
	require.NoError(t, err)
	m.SetSession(m.Session())
	assert.Empty(t, m.Tokens())
}
