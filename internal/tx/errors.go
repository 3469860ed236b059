package tx

import (
	"encoding/hex"
	"fmt"

	"hati/internal/common"
)

// BuildError is the closed set of reasons transaction construction or UTX
// admission can reject a trade. The match loop branches on the concrete
// type, so the set is sealed: no variant exists outside this file.
type BuildError interface {
	error
	isBuildError()
}

// OrderValidationError rejects one specific order of the trade.
type OrderValidationError struct {
	Order common.Order
	Msg   string
}

func (e *OrderValidationError) Error() string {
	return fmt.Sprintf("order %s failed validation: %s", e.Order.ID, e.Msg)
}

// AccountBalanceError rejects by sender: the named accounts cannot cover the
// trade. Keys are hex-encoded sender public keys.
type AccountBalanceError struct {
	Accounts map[string]string
}

func (e *AccountBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %d account(s)", len(e.Accounts))
}

// Involves reports whether sender is one of the rejected accounts.
func (e *AccountBalanceError) Involves(sender []byte) bool {
	_, ok := e.Accounts[hex.EncodeToString(sender)]
	return ok
}

// AccountKey is the map key used by AccountBalanceError for a sender.
func AccountKey(sender []byte) string {
	return hex.EncodeToString(sender)
}

// NegativeAmountError means the executed amounts went inconsistent; the
// submitted order is unusable.
type NegativeAmountError struct{}

func (e *NegativeAmountError) Error() string {
	return "negative amount"
}

// OtherError wraps any rejection the taxonomy does not name.
type OtherError struct {
	Err error
}

func (e *OtherError) Error() string {
	return e.Err.Error()
}

func (e *OtherError) Unwrap() error {
	return e.Err
}

func (*OrderValidationError) isBuildError() {}
func (*AccountBalanceError) isBuildError()  {}
func (*NegativeAmountError) isBuildError()  {}
func (*OtherError) isBuildError()           {}
