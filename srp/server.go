package srp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
)

var (
	ErrInvalidA        = errors.New("srp: invalid client-supplied A")
	ErrClientProofFail = errors.New("srp: client proof did not verify")
)

// Server is the verifier half of a handshake. The client never needs it; it backs local
// fakes of the GSA endpoint.
type Server struct {
	group *Group
	salt  []byte
	v     *big.Int
	b     *big.Int
	B     *big.Int

	k []byte
}

func NewServer(group *Group, salt, verifier, b []byte) (*Server, error) {
	if len(b) == 0 {
		b = make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, err
		}
	}
	v := new(big.Int).SetBytes(verifier)
	secret := new(big.Int).SetBytes(b)
	// B = k*v + g^b mod N
	B := new(big.Int).Mul(group.multiplier(), v)
	B.Add(B, new(big.Int).Exp(group.G, secret, group.N))
	B.Mod(B, group.N)
	return &Server{group: group, salt: salt, v: v, b: secret, B: B}, nil
}

func (s *Server) PublicB() []byte {
	return s.B.Bytes()
}

// VerifyClient checks M1 and returns the server proof M2.
func (s *Server) VerifyClient(username, A, M1 []byte) ([]byte, error) {
	g := s.group
	bigA := new(big.Int).SetBytes(A)
	if new(big.Int).Mod(bigA, g.N).Sign() == 0 {
		return nil, ErrInvalidA
	}
	u := g.scrambler(bigA, s.B)
	// S = (A * v^u) ^ b mod N
	S := new(big.Int).Exp(s.v, u, g.N)
	S.Mul(S, bigA)
	S.Exp(S, s.b, g.N)
	s.k = g.digest(g.pad(S))

	paddedA := g.pad(bigA)
	expected := g.clientProof(username, s.salt, paddedA, s.PublicB(), s.k)
	if subtle.ConstantTimeCompare(expected, M1) != 1 {
		return nil, ErrClientProofFail
	}
	return g.serverProof(paddedA, M1, s.k), nil
}

func (s *Server) SessionKey() []byte {
	return s.k
}
