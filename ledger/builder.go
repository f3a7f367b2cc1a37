package ledger

import (
	"sort"

	did "github.com/whyrusleeping/go-did-ledger"
)

// RoleCode is the numeric role string the ledger stores for an identity.
type RoleCode string

const (
	RoleTrustee        RoleCode = "0"
	RoleSteward        RoleCode = "2"
	RoleTrustAnchor    RoleCode = "101"
	RoleNetworkMonitor RoleCode = "201"

	// RoleCleared removes the role of an identity and is sent as null.
	RoleCleared RoleCode = ""
)

var roleNames = map[string]RoleCode{
	"TRUSTEE":         RoleTrustee,
	"STEWARD":         RoleSteward,
	"TRUST_ANCHOR":    RoleTrustAnchor,
	"ENDORSER":        RoleTrustAnchor,
	"NETWORK_MONITOR": RoleNetworkMonitor,
}

// ParseRole maps a role name to its code. The empty name clears the role.
func ParseRole(name string) (RoleCode, error) {
	if name == "" {
		return RoleCleared, nil
	}

	code, ok := roleNames[name]
	if !ok {
		names := make([]string, 0, len(roleNames))
		for n := range roleNames {
			names = append(names, n)
		}
		sort.Strings(names)

		return "", structureErr("role", "unknown role %q, expected one of %v or empty", name, names)
	}

	return code, nil
}

func (c RoleCode) String() string {
	switch c {
	case RoleTrustee:
		return "TRUSTEE"
	case RoleSteward:
		return "STEWARD"
	case RoleTrustAnchor:
		return "TRUST_ANCHOR"
	case RoleNetworkMonitor:
		return "NETWORK_MONITOR"
	case RoleCleared:
		return "<none>"
	}

	return "ROLE(" + string(c) + ")"
}

// RequestIDs hands out request ids; implementations must be safe for
// concurrent use.
type RequestIDs interface {
	NextRequestID() uint64
}

// Builder produces requests. It performs no I/O.
type Builder struct {
	ids RequestIDs
}

func NewBuilder(ids RequestIDs) *Builder {
	return &Builder{ids: ids}
}

type nymParams struct {
	verkey *string
	alias  *string
	role   *string
}

type NymOption func(p *nymParams)

func WithVerkey(verkey string) NymOption {
	return func(p *nymParams) {
		p.verkey = &verkey
	}
}

func WithAlias(alias string) NymOption {
	return func(p *nymParams) {
		p.alias = &alias
	}
}

// WithRole sets the role by name. An empty name explicitly clears the role.
func WithRole(name string) NymOption {
	return func(p *nymParams) {
		p.role = &name
	}
}

func checkDID(field, s string) (string, error) {
	id, err := did.ParseDID(s)
	if err != nil {
		return "", structureErr(field, "%v", err)
	}

	return id.String(), nil
}

func (b *Builder) request(submitter string, op Operation) (*Request, error) {
	return &Request{
		Identifier:      submitter,
		Operation:       op,
		ProtocolVersion: ProtocolVersion,
		ReqID:           b.ids.NextRequestID(),
	}, nil
}

// BuildNymRequest builds a NYM write. Only the target is required.
func (b *Builder) BuildNymRequest(submitter, dest string, opts ...NymOption) (*Request, error) {
	var p nymParams
	for _, opt := range opts {
		opt(&p)
	}

	submitter, err := checkDID("identifier", submitter)
	if err != nil {
		return nil, err
	}

	dest, err = checkDID("dest", dest)
	if err != nil {
		return nil, err
	}

	op := &NymOperation{
		Dest:  dest,
		Alias: p.alias,
	}

	if p.verkey != nil {
		if *p.verkey == "" {
			return nil, structureErr("verkey", "empty")
		}
		op.Verkey = p.verkey
	}

	if p.role != nil {
		code, err := ParseRole(*p.role)
		if err != nil {
			return nil, err
		}
		op.Role = &code
	}

	return b.request(submitter, op)
}

// BuildGetNymRequest builds a NYM read.
func (b *Builder) BuildGetNymRequest(submitter, dest string) (*Request, error) {
	submitter, err := checkDID("identifier", submitter)
	if err != nil {
		return nil, err
	}

	dest, err = checkDID("dest", dest)
	if err != nil {
		return nil, err
	}

	return b.request(submitter, &GetNymOperation{Dest: dest})
}
