// Package wallet keeps the signing keys of ledger identities.
package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	did "github.com/whyrusleeping/go-did-ledger"
)

const CryptoTypeEd25519 = "ed25519"

var (
	// ErrUnknownIdentity is returned when the wallet holds no key for a DID.
	ErrUnknownIdentity = errors.New("unknown identity")

	ErrNotFound = errors.New("not found")
)

// Store persists serialized keys by DID.
type Store interface {
	Put(ctx context.Context, id string, key []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Close() error
}

// DIDParams mirrors the JSON accepted when creating a DID: an optional 32
// byte seed (raw or hex), an optional explicit DID and the crypto type.
type DIDParams struct {
	Seed       string `json:"seed,omitempty"`
	DID        string `json:"did,omitempty"`
	CryptoType string `json:"crypto_type,omitempty"`
}

func ParseDIDParams(s string) (DIDParams, error) {
	var p DIDParams
	if s == "" {
		return p, nil
	}

	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return p, errors.Wrap(err, "decode did params")
	}

	return p, nil
}

type DIDInfo struct {
	DID    string `json:"did"`
	Verkey string `json:"verkey"`
}

type Wallet struct {
	store  Store
	logger *zap.Logger
}

type Option func(w *Wallet)

func WithLogger(l *zap.Logger) Option {
	return func(w *Wallet) {
		w.logger = l
	}
}

func New(store Store, opts ...Option) *Wallet {
	w := &Wallet{
		store:  store,
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(w)
	}

	w.logger = w.logger.Named("wallet")

	return w
}

func seedBytes(seed string) ([]byte, error) {
	switch len(seed) {
	case 0:
		return nil, nil
	case ed25519.SeedSize:
		return []byte(seed), nil
	case 2 * ed25519.SeedSize:
		b, err := hex.DecodeString(seed)
		if err != nil {
			return nil, errors.Wrap(err, "decode hex seed")
		}
		return b, nil
	default:
		return nil, errors.Errorf("seed must be %d characters or %d hex digits", ed25519.SeedSize, 2*ed25519.SeedSize)
	}
}

// CreateAndStoreDID derives or generates a key, stores it and returns the
// resulting identity. Creating the same seed twice yields the same identity.
func (w *Wallet) CreateAndStoreDID(ctx context.Context, params DIDParams) (DIDInfo, error) {
	if params.CryptoType != "" && params.CryptoType != CryptoTypeEd25519 {
		return DIDInfo{}, errors.Errorf("unsupported crypto type %q", params.CryptoType)
	}

	seed, err := seedBytes(params.Seed)
	if err != nil {
		return DIDInfo{}, err
	}

	sk, err := did.GenerateEd25519(seed)
	if err != nil {
		return DIDInfo{}, err
	}

	pub := sk.Public()

	id, err := pub.LedgerDID()
	if err != nil {
		return DIDInfo{}, err
	}

	if params.DID != "" {
		id, err = did.ParseDID(params.DID)
		if err != nil {
			return DIDInfo{}, errors.Wrap(err, "invalid did param")
		}
	}

	key, err := jwk.FromRaw(sk.Raw)
	if err != nil {
		return DIDInfo{}, errors.Wrap(err, "encode key")
	}

	if err := key.Set(jwk.KeyIDKey, id.String()); err != nil {
		return DIDInfo{}, errors.Wrap(err, "set key id")
	}

	b, err := json.Marshal(key)
	if err != nil {
		return DIDInfo{}, errors.Wrap(err, "marshal key")
	}

	if err := w.store.Put(ctx, id.String(), b); err != nil {
		return DIDInfo{}, errors.Wrapf(err, "store key for %s", id)
	}

	w.logger.Debug("stored did", zap.String("did", id.String()))

	return DIDInfo{DID: id.String(), Verkey: pub.Verkey()}, nil
}

func (w *Wallet) privKey(ctx context.Context, id string) (*did.PrivKey, error) {
	b, err := w.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, errors.Wrapf(ErrUnknownIdentity, "did %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load key for %s", id)
	}

	key, err := jwk.ParseKey(b)
	if err != nil {
		return nil, errors.Wrapf(err, "decode key for %s", id)
	}

	var raw interface{}
	if err := key.Raw(&raw); err != nil {
		return nil, errors.Wrapf(err, "decode key for %s", id)
	}

	sk, ok := raw.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.Errorf("key for %s is %T, not ed25519", id, raw)
	}

	return &did.PrivKey{Type: did.KeyTypeEd25519, Raw: sk}, nil
}

// Sign signs msg with the key of id.
func (w *Wallet) Sign(ctx context.Context, id string, msg []byte) ([]byte, error) {
	sk, err := w.privKey(ctx, id)
	if err != nil {
		return nil, err
	}

	sig, err := did.SignMessage(sk, msg)
	if err != nil {
		return nil, errors.Wrapf(err, "sign as %s", id)
	}

	return sig.Bytes, nil
}

func (w *Wallet) Verkey(ctx context.Context, id string) (string, error) {
	sk, err := w.privKey(ctx, id)
	if err != nil {
		return "", err
	}

	return sk.Public().Verkey(), nil
}

func (w *Wallet) Close() error {
	return w.store.Close()
}
