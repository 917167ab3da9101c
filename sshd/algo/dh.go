package algo

import (
	"errors"
	"io"
	"math/big"
)

// privateExponentBytes is the size of the random DH exponent (640 bits),
// comfortably more than twice the strength of either group.
const privateExponentBytes = 80

var bigOne = big.NewInt(1)

// dhGroup is a multiplicative group with generator g modulo prime p.
type dhGroup struct {
	g, p, pMinus1 *big.Int
}

var (
	// Oakley Group 2 (RFC 2409), named diffie-hellman-group1-sha1 in RFC 4253.
	dhGroup1 = newDHGroup("FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381FFFFFFFFFFFFFFFF")
	// Oakley Group 14 (RFC 3526), named diffie-hellman-group14-sha1 in RFC 4253.
	dhGroup14 = newDHGroup("FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF")
)

func newDHGroup(prime string) *dhGroup {
	p, ok := new(big.Int).SetString(prime, 16)
	if !ok {
		panic("algo: bad dh prime")
	}
	return &dhGroup{
		g:       big.NewInt(2),
		p:       p,
		pMinus1: new(big.Int).Sub(p, bigOne),
	}
}

// ErrDHOutOfBounds is returned when the peer's public value is not in (1, p-1).
var ErrDHOutOfBounds = errors.New("algo: dh parameter out of bounds")

// DiffieHellman holds one side of a DH exchange over a fixed Oakley group.
type DiffieHellman struct {
	group *dhGroup
	x     *big.Int
	e     *big.Int
}

// NewDiffieHellman creates an exchange over the 1024 or 2048 bit Oakley
// group, drawing the private exponent from rand.
func NewDiffieHellman(bits int, rand io.Reader) (*DiffieHellman, error) {
	var group *dhGroup
	switch bits {
	case 1024:
		group = dhGroup1
	case 2048:
		group = dhGroup14
	default:
		return nil, configErrorf("unsupported dh group size %d", bits)
	}
	b := make([]byte, privateExponentBytes)
	x := new(big.Int)
	for x.Cmp(bigOne) <= 0 {
		if _, err := io.ReadFull(rand, b); err != nil {
			return nil, err
		}
		x.SetBytes(b)
	}
	return &DiffieHellman{group: group, x: x}, nil
}

// Bits returns the size of the group prime.
func (d *DiffieHellman) Bits() int { return d.group.p.BitLen() }

// CreateExchange returns this side's public value g^x mod p.
func (d *DiffieHellman) CreateExchange() *big.Int {
	if d.e == nil {
		d.e = new(big.Int).Exp(d.group.g, d.x, d.group.p)
	}
	return d.e
}

// DecryptExchange returns the shared secret peer^x mod p.
func (d *DiffieHellman) DecryptExchange(peer *big.Int) (*big.Int, error) {
	if peer == nil || peer.Cmp(bigOne) <= 0 || peer.Cmp(d.group.pMinus1) >= 0 {
		return nil, ErrDHOutOfBounds
	}
	return new(big.Int).Exp(peer, d.x, d.group.p), nil
}
