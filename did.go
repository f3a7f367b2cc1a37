package did

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
)

const (
	CtxDIDv1             = "https://www.w3.org/ns/did/v1"
	CtxSecEd25519_2018v1 = "https://w3id.org/security/suites/ed25519-2018/v1"
	CtxSecJWS2020v1      = "https://w3id.org/security/suites/jws-2020/v1"
)

const (
	MethodSov    = "sov"
	methodPrefix = "did:" + MethodSov + ":"
)

// DID is an unqualified ledger identifier: the base58 encoding of 16 or 32
// bytes, usually the first half of the owner's verkey.
type DID struct {
	val string
}

func (d DID) String() string {
	return d.val
}

// Qualified returns the did:sov form of the identifier.
func (d DID) Qualified() string {
	return methodPrefix + d.val
}

func (d DID) IsZero() bool {
	return d.val == ""
}

func (d DID) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.val)
}

func (d *DID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	parsed, err := ParseDID(s)
	if err != nil {
		return err
	}

	*d = parsed
	return nil
}

// ParseDID accepts either a bare identifier or its did:sov form.
func ParseDID(s string) (DID, error) {
	s = strings.TrimPrefix(s, methodPrefix)
	if s == "" {
		return DID{}, fmt.Errorf("empty did")
	}

	raw, err := base58.Decode(s)
	if err != nil {
		return DID{}, fmt.Errorf("did %q is not base58: %w", s, err)
	}

	if len(raw) != 16 && len(raw) != 32 {
		return DID{}, fmt.Errorf("did %q decodes to %d bytes, expected 16 or 32", s, len(raw))
	}

	return DID{val: s}, nil
}

type Document struct {
	Context []string `json:"@context"`

	ID string `json:"id"`

	Authentication []interface{} `json:"authentication"`

	VerificationMethod []VerificationMethod `json:"verificationMethod"`

	Services []Service `json:"services,omitempty"`
}

// TODO: switch to a JCS canonical form once documents are signed.
func (d *Document) Serialize() ([]byte, error) {
	return json.Marshal(d)
}

type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

type VerificationMethod struct {
	ID                 string        `json:"id"`
	Type               string        `json:"type"`
	Controller         string        `json:"controller"`
	PublicKeyJwk       *PublicKeyJwk `json:"publicKeyJwk,omitempty"`
	PublicKeyBase58    *string       `json:"publicKeyBase58,omitempty"`
	PublicKeyMultibase *string       `json:"publicKeyMultibase,omitempty"`
}

func (vm VerificationMethod) GetPublicKey() (*PubKey, error) {
	switch {
	case vm.PublicKeyJwk != nil:
		k, err := vm.PublicKeyJwk.GetRawKey()
		if err != nil {
			return nil, err
		}

		ek, ok := k.(ed25519.PublicKey)
		if !ok {
			return nil, fmt.Errorf("only ed25519 jwk keys are currently supported")
		}

		return &PubKey{Type: KeyTypeEd25519, Raw: ek}, nil
	case vm.PublicKeyBase58 != nil:
		raw, err := base58.Decode(*vm.PublicKeyBase58)
		if err != nil {
			return nil, err
		}

		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("base58 key has %d bytes", len(raw))
		}

		return &PubKey{Type: KeyTypeEd25519, Raw: ed25519.PublicKey(raw)}, nil
	case vm.PublicKeyMultibase != nil:
		return KeyFromMultibase(*vm.PublicKeyMultibase)
	}

	return nil, fmt.Errorf("verification method %q carries no key", vm.ID)
}

type PublicKeyJwk struct {
	Key jwk.Key
}

func (pkj *PublicKeyJwk) UnmarshalJSON(b []byte) error {
	parsed, err := jwk.Parse(b)
	if err != nil {
		return err
	}

	if parsed.Len() != 1 {
		return fmt.Errorf("expected a single key in the jwk field")
	}

	k, ok := parsed.Key(0)
	if !ok {
		return fmt.Errorf("should be unpossible")
	}

	pkj.Key = k

	return nil
}

func (pkj *PublicKeyJwk) MarshalJSON() ([]byte, error) {
	return json.Marshal(pkj.Key)
}

func (pk *PublicKeyJwk) GetRawKey() (interface{}, error) {
	var rawkey interface{}
	if err := pk.Key.Raw(&rawkey); err != nil {
		return nil, err
	}

	return rawkey, nil
}

// GetPublicKey returns the key of the verification method with the given id,
// or the only one when id is empty.
func (d *Document) GetPublicKey(id string) (*PubKey, error) {
	if id == "" {
		if len(d.VerificationMethod) != 1 {
			return nil, fmt.Errorf("doc has %d verification methods, must name one", len(d.VerificationMethod))
		}

		return d.VerificationMethod[0].GetPublicKey()
	}

	for _, vm := range d.VerificationMethod {
		if vm.ID == id || strings.TrimPrefix(vm.ID, d.ID) == id {
			return vm.GetPublicKey()
		}
	}

	return nil, fmt.Errorf("verification method %q not found", id)
}
