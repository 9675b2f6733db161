// Package srp implements the SRP-6a variant used by Apple's GSA service: the username is left
// out of x, k and u are computed over values padded to the group size, and M1 hashes
// H(N) xor H(pad(g)).
package srp

import (
	"crypto"
	_ "crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

// Group is an SRP <g, N> pair together with the hash used over it.
type Group struct {
	G    *big.Int
	N    *big.Int
	Hash crypto.Hash
	Bits int
}

// RFC 5054 2048-bit group, the only one GSA negotiates.
var Group2048 = newGroup(2, 2048, crypto.SHA256, `
	AC6BDB41 324A9A9B F166DE5E 1389582F AF72B665 1987EE07 FC319294
	3DB56050 A37329CB B4A099ED 8193E075 7767A13D D52312AB 4B03310D
	CD7F48A9 DA04FD50 E8083969 EDB767B0 CF609517 9A163AB3 661A05FB
	D5FAAAE8 2918A996 2F0B93B8 55F97993 EC975EEA A80D740A DBF4FF74
	7359D041 D5C33EA7 1D281E44 6B14773B CA97B43A 23FB8016 76BD207A
	436C6481 F1D2B907 8717461A 5B9D32E6 88F87748 544523B5 24B0D57D
	5EA77A27 75D2ECFA 032CFBDB F52FB378 61602790 04E57AE6 AF874E73
	03CE5329 9CCC041C 7BC308D8 2A5698F3 A8D0C382 71AE35F8 E9DBFBB6
	94B5C803 D89F7AE4 35DE236D 525F5475 9B65E372 FCD68EF2 0FA7111F
	9E4AFF73`)

func newGroup(g int64, bits int, h crypto.Hash, nHex string) *Group {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return r
		}
		return -1
	}, nHex)
	raw, err := hex.DecodeString(clean)
	if err != nil {
		panic("srp: bad group constant")
	}
	return &Group{G: big.NewInt(g), N: new(big.Int).SetBytes(raw), Hash: h, Bits: bits}
}

func (g *Group) pad(n *big.Int) []byte {
	return padTo(n.Bytes(), g.Bits/8)
}

func (g *Group) digest(parts ...[]byte) []byte {
	h := g.Hash.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// multiplier is k = H(N | pad(g)).
func (g *Group) multiplier() *big.Int {
	return hashToInt(g.digest(g.N.Bytes(), g.pad(g.G)))
}

func (g *Group) scrambler(A, B *big.Int) *big.Int {
	return hashToInt(g.digest(g.pad(A), g.pad(B)))
}

// x = H(salt | H(":" | password)), no username.
func (g *Group) privateKey(salt, password []byte) *big.Int {
	inner := g.digest([]byte(":"), password)
	return hashToInt(g.digest(salt, inner))
}

// clientProof is M1 = H(H(pad(g)) xor H(N) | H(I) | salt | pad(A) | B | K).
func (g *Group) clientProof(username, salt, paddedA, B, K []byte) []byte {
	hg := g.digest(g.pad(g.G))
	hn := g.digest(g.N.Bytes())
	x := make([]byte, len(hg))
	for i := range hg {
		x[i] = hg[i] ^ hn[i]
	}
	return g.digest(x, g.digest(username), salt, paddedA, B, K)
}

func (g *Group) serverProof(paddedA, M1, K []byte) []byte {
	return g.digest(paddedA, M1, K)
}

// Verifier computes v = g^x mod N for a salt and stretched password.
func (g *Group) Verifier(salt, password []byte) []byte {
	v := new(big.Int).Exp(g.G, g.privateKey(salt, password), g.N)
	return g.pad(v)
}

func hashToInt(sum []byte) *big.Int {
	return new(big.Int).SetBytes(sum)
}

func padTo(b []byte, length int) []byte {
	if len(b) >= length {
		return b
	}
	out := make([]byte, length)
	copy(out[length-len(b):], b)
	return out
}
