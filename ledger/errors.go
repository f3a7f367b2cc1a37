package ledger

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/whyrusleeping/go-did-ledger/wallet"
)

var (
	// ErrUnknownIdentity is returned when the signer has no key in the wallet.
	ErrUnknownIdentity = wallet.ErrUnknownIdentity

	// ErrNetworkTimeout is returned when no quorum formed before the deadline.
	ErrNetworkTimeout = errors.New("no consensus before deadline")

	// ErrConsensusMismatch is returned when node replies disagree so that no
	// result can reach quorum any more.
	ErrConsensusMismatch = errors.New("node replies do not agree")

	ErrMalformedReply = errors.New("malformed reply")

	ErrNotFound = errors.New("not found on ledger")
)

// StructureError reports invalid input caught before any network traffic.
type StructureError struct {
	Field string
	Msg   string
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("invalid structure: %s: %s", e.Field, e.Msg)
}

func structureErr(field, format string, args ...interface{}) error {
	return &StructureError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// MalformedReplyError matches ErrMalformedReply with errors.Is.
type MalformedReplyError struct {
	Detail string
}

func (e *MalformedReplyError) Error() string {
	return "malformed reply: " + e.Detail
}

func (e *MalformedReplyError) Is(target error) bool {
	return target == ErrMalformedReply
}

func malformed(format string, args ...interface{}) error {
	return &MalformedReplyError{Detail: fmt.Sprintf(format, args...)}
}

// LedgerRejection is a REQNACK or REJECT answer. It is an expected outcome
// for unauthorized or unsigned requests.
type LedgerRejection struct {
	Op     string
	Reason string
}

func (e *LedgerRejection) Error() string {
	return fmt.Sprintf("ledger rejected request (%s): %s", e.Op, e.Reason)
}

func IsLedgerRejection(err error) bool {
	var lr *LedgerRejection
	return errors.As(err, &lr)
}

func IsStructureError(err error) bool {
	var se *StructureError
	return errors.As(err, &se)
}
