package node

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/whyrusleeping/go-did-ledger/ledger"
)

var nymCreators = []ledger.RoleCode{
	ledger.RoleTrustee,
	ledger.RoleSteward,
	ledger.RoleTrustAnchor,
}

// grantors lists who may assign each role.
var grantors = map[ledger.RoleCode][]ledger.RoleCode{
	ledger.RoleTrustee:        {ledger.RoleTrustee},
	ledger.RoleSteward:        {ledger.RoleTrustee},
	ledger.RoleTrustAnchor:    {ledger.RoleTrustee, ledger.RoleSteward},
	ledger.RoleNetworkMonitor: {ledger.RoleTrustee, ledger.RoleSteward},
	ledger.RoleCleared:        {ledger.RoleTrustee},
}

func canGrant(signer, role ledger.RoleCode) error {
	if !lo.Contains(grantors[role], signer) {
		return fmt.Errorf("%s cannot assign role %s", signer, role)
	}

	return nil
}

// authorize applies the NYM write rules: only trustees, stewards and trust
// anchors create identities, roles are granted per the grantors table, and
// an existing identity is updated by its owner, its creator or a trustee.
func authorize(signer *record, op *ledger.NymOperation, existing *record) error {
	if existing == nil {
		if !lo.Contains(nymCreators, signer.role) {
			return fmt.Errorf("%s is neither Trustee nor Steward nor Trust Anchor and cannot create NYM %s", signer.dest, op.Dest)
		}

		if op.Role != nil && *op.Role != ledger.RoleCleared {
			return canGrant(signer.role, *op.Role)
		}

		return nil
	}

	isOwner := signer.dest == existing.dest || signer.dest == existing.identifier
	if (op.Verkey != nil || op.Alias != nil) && !isOwner && signer.role != ledger.RoleTrustee {
		return fmt.Errorf("%s is not the owner of %s", signer.dest, op.Dest)
	}

	if op.Role != nil && *op.Role != existing.role {
		return canGrant(signer.role, *op.Role)
	}

	return nil
}
