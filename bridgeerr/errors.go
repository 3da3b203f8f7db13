package bridgeerr

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindUserRejected
	KindApprovalRequired
	KindNotApproved
	KindNoApprovalRequired
	KindInvalidProof
	KindContractRevert
	KindNetwork
	KindUnknownTokenType
	KindInvalidArgs
	KindMessageProcessed
	KindNotOwner
	KindUnsupportedChain
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindUserRejected:       "user_rejected",
	KindApprovalRequired:   "approval_required",
	KindNotApproved:        "not_approved",
	KindNoApprovalRequired: "no_approval_required",
	KindInvalidProof:       "invalid_proof",
	KindContractRevert:     "contract_revert",
	KindNetwork:            "network",
	KindUnknownTokenType:   "unknown_token_type",
	KindInvalidArgs:        "invalid_args",
	KindMessageProcessed:   "message_processed",
	KindNotOwner:           "not_owner",
	KindUnsupportedChain:   "unsupported_chain",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is the typed failure surfaced to callers of the bridge client.
// Terminal is only meaningful for KindContractRevert: validation reverts
// are terminal, execution reverts leave the message retriable.
type Error struct {
	Kind     Kind
	Op       string
	Reason   string
	Terminal bool
	Err      error
}

// Sentinels for errors.Is. Matching only compares Kind.
var (
	ErrUserRejected       = &Error{Kind: KindUserRejected}
	ErrApprovalRequired   = &Error{Kind: KindApprovalRequired}
	ErrNotApproved        = &Error{Kind: KindNotApproved}
	ErrNoApprovalRequired = &Error{Kind: KindNoApprovalRequired}
	ErrInvalidProof       = &Error{Kind: KindInvalidProof}
	ErrContractRevert     = &Error{Kind: KindContractRevert}
	ErrNetwork            = &Error{Kind: KindNetwork}
	ErrUnknownTokenType   = &Error{Kind: KindUnknownTokenType}
	ErrInvalidArgs        = &Error{Kind: KindInvalidArgs}
	ErrMessageProcessed   = &Error{Kind: KindMessageProcessed}
	ErrNotOwner           = &Error{Kind: KindNotOwner}
	ErrUnsupportedChain   = &Error{Kind: KindUnsupportedChain}
)

func New(kind Kind, op, reason string) *Error {
	return &Error{Kind: kind, Op: op, Reason: reason}
}

func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsTerminal reports whether retrying the same call cannot succeed.
func IsTerminal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Kind {
	case KindContractRevert:
		return e.Terminal
	case KindNetwork, KindInvalidProof:
		return false
	default:
		return true
	}
}
