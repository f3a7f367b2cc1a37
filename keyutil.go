package did

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
)

func DIDFromVerkey(k ed25519.PublicKey) DID {
	return DID{val: base58.Encode(k[:16])}
}

// AbbreviateVerkey returns the "~" form of a verkey whose first half is
// already carried by the identifier.
func AbbreviateVerkey(id DID, verkey string) (string, error) {
	raw, err := base58.Decode(verkey)
	if err != nil {
		return "", err
	}

	if len(raw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("verkey has %d bytes", len(raw))
	}

	if DIDFromVerkey(raw).val != id.val {
		return verkey, nil
	}

	return "~" + base58.Encode(raw[16:]), nil
}

// ExpandVerkey resolves an abbreviated verkey against its identifier. Full
// verkeys are returned unchanged.
func ExpandVerkey(id DID, verkey string) (string, error) {
	if !strings.HasPrefix(verkey, "~") {
		return verkey, nil
	}

	head, err := base58.Decode(id.val)
	if err != nil {
		return "", err
	}

	tail, err := base58.Decode(verkey[1:])
	if err != nil {
		return "", err
	}

	if len(head)+len(tail) != ed25519.PublicKeySize {
		return "", fmt.Errorf("abbreviated verkey %q does not complete did %s", verkey, id)
	}

	return base58.Encode(append(head, tail...)), nil
}

// PubKeyFromVerkey decodes a full or abbreviated ed25519 verkey.
func PubKeyFromVerkey(id DID, verkey string) (*PubKey, error) {
	full, err := ExpandVerkey(id, verkey)
	if err != nil {
		return nil, err
	}

	raw, err := base58.Decode(full)
	if err != nil {
		return nil, err
	}

	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("verkey has %d bytes", len(raw))
	}

	return &PubKey{Type: KeyTypeEd25519, Raw: ed25519.PublicKey(raw)}, nil
}

// DocumentFromVerkey renders the DID document of a ledger identity with a
// single ed25519 verification method, published both as JWK and base58.
func DocumentFromVerkey(id DID, verkey string) (*Document, error) {
	pub, err := PubKeyFromVerkey(id, verkey)
	if err != nil {
		return nil, err
	}

	key, err := jwk.FromRaw(pub.Raw)
	if err != nil {
		return nil, fmt.Errorf("encode verkey as jwk: %w", err)
	}

	full := pub.Verkey()
	vmID := id.Qualified() + "#verkey"

	return &Document{
		Context:        []string{CtxDIDv1, CtxSecEd25519_2018v1},
		ID:             id.Qualified(),
		Authentication: []interface{}{vmID},
		VerificationMethod: []VerificationMethod{{
			ID:              vmID,
			Type:            KeyTypeEd25519,
			Controller:      id.Qualified(),
			PublicKeyJwk:    &PublicKeyJwk{Key: key},
			PublicKeyBase58: &full,
		}},
	}, nil
}
