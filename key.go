package did

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
	"math/big"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"

	secp "github.com/ethereum/go-ethereum/crypto/secp256k1"
)

const (
	MCed25519   = 0xED
	MCP256      = 0x1200
	MCSecp256k1 = 0xe7
)
const (
	KeyTypeSecp256k1 = "EcdsaSecp256k1VerificationKey2019"
	KeyTypeP256      = "EcdsaSecp256r1VerificationKey2019"
	KeyTypeEd25519   = "Ed25519VerificationKey2018"
)

type PrivKey struct {
	Raw  interface{}
	Type string
}

// GenerateEd25519 returns a new ed25519 key. A nil seed draws a random one.
func GenerateEd25519(seed []byte) (*PrivKey, error) {
	if seed == nil {
		_, sk, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}

		return &PrivKey{Type: KeyTypeEd25519, Raw: sk}, nil
	}

	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	return &PrivKey{Type: KeyTypeEd25519, Raw: ed25519.NewKeyFromSeed(seed)}, nil
}

func (k *PrivKey) Public() *PubKey {
	switch k.Type {
	case KeyTypeEd25519:
		kb := k.Raw.(ed25519.PrivateKey)
		pub := kb.Public().(ed25519.PublicKey)

		return &PubKey{
			Type: k.Type,
			Raw:  pub,
		}
	case KeyTypeP256:
		sk := k.Raw.(*ecdsa.PrivateKey)

		return &PubKey{
			Type: k.Type,
			Raw:  elliptic.MarshalCompressed(elliptic.P256(), sk.X, sk.Y),
		}
	case KeyTypeSecp256k1:
		x, y := secp.S256().ScalarBaseMult(k.Raw.([]byte))

		return &PubKey{
			Type: k.Type,
			Raw:  secp.CompressPubkey(x, y),
		}
	default:
		panic("invalid key type")
	}
}

func (k *PrivKey) Sign(b []byte) ([]byte, error) {
	switch k.Type {
	case KeyTypeEd25519:
		return ed25519.Sign(k.Raw.(ed25519.PrivateKey), b), nil
	case KeyTypeP256:
		h := sha256.Sum256(b)
		r, s, err := ecdsa.Sign(rand.Reader, k.Raw.(*ecdsa.PrivateKey), h[:])
		if err != nil {
			return nil, err
		}

		out := make([]byte, 64)
		r.FillBytes(out[:32])
		s.FillBytes(out[32:])

		return out, nil
	case KeyTypeSecp256k1:
		h := sha256.Sum256(b)

		sig, err := secp.Sign(h[:], k.Raw.([]byte))
		if err != nil {
			return nil, err
		}

		// drop the recovery id
		return sig[:64], nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", k.Type)
	}
}

func (k *PrivKey) KeyType() string {
	return k.Type
}

func varEncode(pref uint64, body []byte) []byte {
	buf := make([]byte, 8+len(body))
	n := varint.PutUvarint(buf, pref)
	copy(buf[n:], body)
	buf = buf[:n+len(body)]

	return buf
}

type PubKey struct {
	Raw  any
	Type string
}

// Bytes returns the wire encoding of the key: raw for ed25519, compressed
// points for the ecdsa curves.
func (k *PubKey) Bytes() []byte {
	switch raw := k.Raw.(type) {
	case ed25519.PublicKey:
		return raw
	case []byte:
		return raw
	default:
		return nil
	}
}

func (k *PubKey) DID() string {
	return "did:key:" + k.MultibaseString()
}

// Verkey is the base58 key encoding ledger NYM transactions carry.
func (k *PubKey) Verkey() string {
	return base58.Encode(k.Bytes())
}

// LedgerDID derives the identifier a ledger assigns to an ed25519 key: the
// first 16 bytes of the verkey.
func (k *PubKey) LedgerDID() (DID, error) {
	if k.Type != KeyTypeEd25519 {
		return DID{}, fmt.Errorf("ledger identifiers need ed25519 keys, got %s", k.Type)
	}

	return DIDFromVerkey(k.Raw.(ed25519.PublicKey)), nil
}

func (k *PubKey) MultibaseString() string {
	var buf []byte
	switch k.Type {
	case KeyTypeEd25519:
		buf = varEncode(MCed25519, k.Bytes())
	case KeyTypeP256:
		buf = varEncode(MCP256, k.Bytes())
	case KeyTypeSecp256k1:
		buf = varEncode(MCSecp256k1, k.Bytes())
	default:
		return "<invalid key type>"
	}

	kstr, err := multibase.Encode(multibase.Base58BTC, buf)
	if err != nil {
		panic(err)
	}
	return kstr
}

var ErrInvalidSignature = fmt.Errorf("invalid signature")

func (k *PubKey) Verify(msg, sig []byte) error {
	switch k.Type {
	case KeyTypeEd25519:
		if !ed25519.Verify(k.Raw.(ed25519.PublicKey), msg, sig) {
			return ErrInvalidSignature
		}

		return nil
	case KeyTypeP256:
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), k.Bytes())
		if x == nil {
			return fmt.Errorf("invalid p256 point")
		}

		pubk := &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     x,
			Y:     y,
		}

		r, s, err := parseP256Sig(sig)
		if err != nil {
			return err
		}

		h := sha256.Sum256(msg)
		if !ecdsa.Verify(pubk, h[:], r, s) {
			return ErrInvalidSignature
		}
		return nil

	case KeyTypeSecp256k1:
		if len(sig) == 65 {
			sig = sig[:64]
		}

		h := sha256.Sum256(msg)
		if !secp.VerifySignature(k.Bytes(), h[:], sig) {
			return ErrInvalidSignature
		}

		return nil
	default:
		return fmt.Errorf("unsupported key type: %q", k.Type)

	}
}

func parseP256Sig(buf []byte) (*big.Int, *big.Int, error) {
	if len(buf) != 64 {
		return nil, nil, fmt.Errorf("p256 signatures must be 64 bytes")
	}

	r := big.NewInt(0)
	s := big.NewInt(0)

	r.SetBytes(buf[:32])
	s.SetBytes(buf[32:])

	return r, s, nil
}

func (k *PrivKey) RawBytes() ([]byte, error) {
	switch k.Type {
	case KeyTypeEd25519:
		return k.Raw.(ed25519.PrivateKey), nil
	case KeyTypeP256:
		b, err := x509.MarshalECPrivateKey(k.Raw.(*ecdsa.PrivateKey))
		if err != nil {
			return nil, err
		}

		return b, nil
	case KeyTypeSecp256k1:
		return k.Raw.([]byte), nil
	default:
		return nil, fmt.Errorf("unsupported key type: %q", k.Type)
	}
}

func KeyFromMultibase(mbstr string) (*PubKey, error) {
	_, data, err := multibase.Decode(mbstr)
	if err != nil {
		return nil, err
	}

	val, n, err := varint.FromUvarint(data)
	if err != nil {
		return nil, err
	}

	switch val {
	case MCed25519:
		return &PubKey{
			Type: KeyTypeEd25519,
			Raw:  ed25519.PublicKey(data[n:]),
		}, nil
	case MCP256:
		return &PubKey{
			Type: KeyTypeP256,
			Raw:  data[n:],
		}, nil
	case MCSecp256k1:
		return &PubKey{
			Type: KeyTypeSecp256k1,
			Raw:  data[n:],
		}, nil
	default:
		return nil, fmt.Errorf("unrecognized key multicodec")
	}
}
