package gsa

import (
	"bytes"
	"encoding/hex"
	"testing"
	"time"

	"github.com/appuploader/grandslam/gsacrypto"
	"github.com/appuploader/grandslam/gsaerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenTokenEnvelopeChecksShapeFirst(t *testing.T) {
	sk := bytes.Repeat([]byte{1}, 32)

	_, err := openTokenEnvelope(sk, []byte("XYZ"))
	assert.ErrorIs(t, err, gsaerr.ErrTokenFormat)

	_, err = openTokenEnvelope(sk, make([]byte, envelopeMinLen-1))
	assert.ErrorIs(t, err, gsaerr.ErrTokenFormat)

	// right length, wrong tag: rejected without touching the cipher, even with a bad key
	env := append([]byte("XYA"), make([]byte, 40)...)
	_, err = openTokenEnvelope([]byte("short"), env)
	assert.ErrorIs(t, err, gsaerr.ErrTokenFormat)
}

func TestOpenTokenEnvelopeBadTagIsIntegrity(t *testing.T) {
	sk := bytes.Repeat([]byte{1}, 32)
	env := append([]byte("XYZ"), make([]byte, 16+32)...)
	_, err := openTokenEnvelope(sk, env)
	assert.ErrorIs(t, err, gsaerr.ErrIntegrity)
}

func TestChecksumConcatenatesWithoutSeparators(t *testing.T) {
	sk := bytes.Repeat([]byte{7}, 32)
	assert.Equal(t, gsacrypto.HMACSHA256(sk, []byte("apptokens123com.apple.gs.xcode.auth")), checksum(sk, "123", AppIDXcode))
}

func TestStretchPasswordProtocols(t *testing.T) {
	salt := []byte("salt")
	digest := gsacrypto.SHA256([]byte("pw"))
	assert.Equal(t, gsacrypto.PBKDF2(digest, salt, 10, 32), stretchPassword("pw", salt, 10, ProtocolS2K))
	assert.Equal(t, gsacrypto.PBKDF2([]byte(hex.EncodeToString(digest)), salt, 10, 32), stretchPassword("pw", salt, 10, ProtocolS2KFO))
}

func TestSecondFactorOf(t *testing.T) {
	for au, want := range map[string]SecondFactor{
		"":                         SecondFactorNone,
		AuthSecondary:              SecondFactorSMS,
		AuthTrustedDeviceSecondary: SecondFactorTrustedDevice,
	} {
		got, err := secondFactorOf(&Status{AuthURL: au})
		require.NoError(t, err)
		assert.Equal(t, want, got, au)
	}
	_, err := secondFactorOf(&Status{AuthURL: "repairRequired"})
	assert.ErrorIs(t, err, gsaerr.ErrProtocol)

	f, err := secondFactorOf(nil)
	assert.NoError(t, err)
	assert.Equal(t, SecondFactorNone, f)
}

func TestInitResponseValidation(t *testing.T) {
	good := initResponse{Salt: []byte("s"), Iterations: 1000, Protocol: ProtocolS2K, B: []byte{2}, Cookie: "c"}
	assert.NoError(t, good.validate())

	bad := good
	bad.Protocol = "s2k_plain"
	assert.ErrorIs(t, bad.validate(), gsaerr.ErrProtocol)

	bad = good
	bad.B = nil
	assert.ErrorIs(t, bad.validate(), gsaerr.ErrProtocol)

	bad = good
	bad.Iterations = 0
	assert.ErrorIs(t, bad.validate(), gsaerr.ErrProtocol)
}

func TestUnmarshalFragment(t *testing.T) {
	var payload appTokensPayload
	fragment := `<dict><key>status-code</key><integer>200</integer><key>t</key><dict><key>app</key><dict>` +
		`<key>token</key><string>tk</string><key>expiry</key><integer>1893456000000</integer>` +
		`<key>duration</key><integer>3600</integer></dict></dict></dict>`
	require.NoError(t, unmarshalFragment([]byte(fragment), &payload))
	assert.Equal(t, 200, payload.StatusCode)
	assert.Equal(t, "tk", payload.Tokens["app"].Token)
	assert.Equal(t, time.UnixMilli(1893456000000), payload.Tokens["app"].ExpiresAt())
}

func TestSessionValidate(t *testing.T) {
	s := SessionPackage{Adsid: "a", GsIdmsToken: "t", SessionKey: make([]byte, 32), Cookie: []byte("c")}
	assert.NoError(t, s.Validate())
	assert.Equal(t, "YTp0", s.IdentityToken())

	short := s
	short.SessionKey = make([]byte, 16)
	assert.ErrorIs(t, short.Validate(), gsaerr.ErrProtocol)

	noCookie := s
	noCookie.Cookie = nil
	assert.ErrorIs(t, noCookie.Validate(), gsaerr.ErrProtocol)
}

func TestDecryptSessionRejectsGarbage(t *testing.T) {
	_, err := decryptSession(make([]byte, 32), []byte("not a block multiple"))
	assert.ErrorIs(t, err, gsaerr.ErrProtocol)
}
