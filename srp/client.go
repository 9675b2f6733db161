package srp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
)

var ErrInvalidB = errors.New("srp: invalid server-supplied B, must be 1..N-1")

// Client is the client half of one handshake. It is not safe for reuse across logins.
type Client struct {
	group *Group
	a     *big.Int
	A     *big.Int

	m1 []byte
	m2 []byte
	k  []byte
}

// NewClient picks a fresh private ephemeral, or uses a when it is non-empty.
func NewClient(group *Group, a []byte) (*Client, error) {
	if len(a) == 0 {
		a = make([]byte, 32)
		if _, err := rand.Read(a); err != nil {
			return nil, err
		}
	}
	secret := new(big.Int).SetBytes(a)
	return &Client{
		group: group,
		a:     secret,
		A:     new(big.Int).Exp(group.G, secret, group.N),
	}, nil
}

// PublicA is the unpadded public ephemeral sent as A2k.
func (c *Client) PublicA() []byte {
	return c.A.Bytes()
}

// ProcessChallenge computes K, M1 and the expected M2 from the server's salt and B.
// password is the already stretched password.
func (c *Client) ProcessChallenge(username, password, salt, B []byte) error {
	g := c.group
	bigB := new(big.Int).SetBytes(B)
	if bigB.Sign() <= 0 || bigB.Cmp(g.N) >= 0 {
		return ErrInvalidB
	}
	x := g.privateKey(salt, password)
	u := g.scrambler(c.A, bigB)
	if u.Sign() == 0 {
		return ErrInvalidB
	}

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(g.G, x, g.N)
	kgx := new(big.Int).Mul(g.multiplier(), gx)
	base := new(big.Int).Sub(bigB, kgx)
	base.Mod(base, g.N)
	exp := new(big.Int).Mul(u, x)
	exp.Add(exp, c.a)
	S := new(big.Int).Exp(base, exp, g.N)

	c.k = g.digest(g.pad(S))
	paddedA := g.pad(c.A)
	c.m1 = g.clientProof(username, salt, paddedA, B, c.k)
	c.m2 = g.serverProof(paddedA, c.m1, c.k)
	return nil
}

func (c *Client) M1() []byte {
	return c.m1
}

// VerifyM2 compares the server proof in constant time.
func (c *Client) VerifyM2(serverM2 []byte) bool {
	return len(c.m2) > 0 && subtle.ConstantTimeCompare(c.m2, serverM2) == 1
}

// SessionKey is the shared secret K.
func (c *Client) SessionKey() []byte {
	return c.k
}
