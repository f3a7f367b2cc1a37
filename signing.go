package did

import (
	"fmt"

	"github.com/mr-tron/base58"
)

type Signature struct {
	Bytes []byte
	Type  string
}

// String renders the signature the way ledger requests carry it.
func (s *Signature) String() string {
	return base58.Encode(s.Bytes)
}

func ParseSignature(s string, keyType string) (*Signature, error) {
	if s == "" {
		return nil, fmt.Errorf("empty signature")
	}

	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("signature is not base58: %w", err)
	}

	return &Signature{Bytes: b, Type: keyType}, nil
}

// SignMessage signs msg as-is. Ledger nodes verify ed25519 signatures over the
// serialized request without hashing it first.
func SignMessage(k *PrivKey, msg []byte) (*Signature, error) {
	sig, err := k.Sign(msg)
	if err != nil {
		return nil, err
	}

	return &Signature{
		Bytes: sig,
		Type:  k.Type,
	}, nil
}

func VerifyMessage(pub *PubKey, msg []byte, sig *Signature) error {
	if sig.Type != "" && sig.Type != pub.Type {
		return fmt.Errorf("signature type %s does not match key type %s", sig.Type, pub.Type)
	}

	return pub.Verify(msg, sig.Bytes)
}
