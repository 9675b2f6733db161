package srp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handshake(t *testing.T, clientPassword, serverPassword []byte) (*Client, *Server, []byte, error) {
	salt := []byte("0123456789abcdef")
	username := []byte("user@example.com")

	server, err := NewServer(Group2048, salt, Group2048.Verifier(salt, serverPassword), nil)
	require.NoError(t, err)
	client, err := NewClient(Group2048, nil)
	require.NoError(t, err)

	require.NoError(t, client.ProcessChallenge(username, clientPassword, salt, server.PublicB()))
	m2, err := server.VerifyClient(username, client.PublicA(), client.M1())
	return client, server, m2, err
}

func TestHandshakeAgreesOnKey(t *testing.T) {
	client, server, m2, err := handshake(t, []byte("stretched"), []byte("stretched"))
	require.NoError(t, err)
	assert.True(t, client.VerifyM2(m2))
	assert.Equal(t, server.SessionKey(), client.SessionKey())
	assert.Len(t, client.SessionKey(), 32)
}

func TestWrongPasswordFailsClientProof(t *testing.T) {
	_, _, _, err := handshake(t, []byte("wrong"), []byte("stretched"))
	assert.ErrorIs(t, err, ErrClientProofFail)
}

func TestVerifyM2RejectsFlippedBit(t *testing.T) {
	client, _, m2, err := handshake(t, []byte("pw"), []byte("pw"))
	require.NoError(t, err)
	m2[0] ^= 0x01
	assert.False(t, client.VerifyM2(m2))
}

func TestRejectsDegenerateB(t *testing.T) {
	client, err := NewClient(Group2048, []byte{1, 2, 3})
	require.NoError(t, err)
	assert.ErrorIs(t, client.ProcessChallenge([]byte("u"), []byte("p"), []byte("s"), []byte{0}), ErrInvalidB)
	assert.ErrorIs(t, client.ProcessChallenge([]byte("u"), []byte("p"), []byte("s"), Group2048.N.Bytes()), ErrInvalidB)
}

func TestFixedEphemeralIsDeterministic(t *testing.T) {
	a := []byte{0x42, 0x42, 0x42}
	c1, err := NewClient(Group2048, a)
	require.NoError(t, err)
	c2, err := NewClient(Group2048, a)
	require.NoError(t, err)
	assert.Equal(t, c1.PublicA(), c2.PublicA())
}
