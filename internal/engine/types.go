package engine

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ClientID identifies an account owner.
type ClientID uint16

// TxID identifies a deposit or withdrawal transaction.
type TxID uint32

// Kind enumerates the transaction kinds the engine understands.
type Kind string

const (
	Deposit    Kind = "deposit"
	Withdrawal Kind = "withdrawal"
	Dispute    Kind = "dispute"
	Resolve    Kind = "resolve"
	Chargeback Kind = "chargeback"
)

// Record is one parsed transaction. Records arrive in the order they
// must be applied; ordering is the caller's guarantee.
type Record struct {
	Kind   Kind     `json:"kind"`
	Client ClientID `json:"client"`
	Tx     TxID     `json:"tx"`
	// Amount is set for Deposit/Withdrawal only; HasAmount tells the
	// two apart from a zero amount, which is legal.
	Amount    decimal.Decimal `json:"amount"`
	HasAmount bool            `json:"-"`
}

// Account holds the balances for one client. Total is derived, never
// stored, so total == available + held cannot drift.
type Account struct {
	Client    ClientID        `json:"client"`
	Available decimal.Decimal `json:"available"`
	Held      decimal.Decimal `json:"held"`
	Locked    bool            `json:"locked"`
}

// Total returns the full balance, available plus held.
func (a Account) Total() decimal.Decimal { return a.Available.Add(a.Held) }

// deposit is the stored history entry for a settled deposit. Only
// deposits are kept; withdrawals cannot be disputed and are forgotten.
type deposit struct {
	client   ClientID
	amount   decimal.Decimal
	disputed bool
}

var (
	ErrMalformedRecord        = errors.New("engine: malformed record")
	ErrDuplicateTransaction   = errors.New("engine: transaction id already used")
	ErrUnknownReference       = errors.New("engine: referenced transaction does not exist")
	ErrOwnerMismatch          = errors.New("engine: referenced transaction belongs to another client")
	ErrInvalidStateTransition = errors.New("engine: invalid dispute state transition")
	ErrInsufficientFunds      = errors.New("engine: insufficient funds")
	ErrAccountLocked          = errors.New("engine: account is locked")
)

// Reason maps a rejection to a stable label used in metrics and audit
// entries. Unknown errors report as "internal".
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRecord):
		return "malformed_record"
	case errors.Is(err, ErrDuplicateTransaction):
		return "duplicate_transaction"
	case errors.Is(err, ErrUnknownReference):
		return "unknown_reference"
	case errors.Is(err, ErrOwnerMismatch):
		return "owner_mismatch"
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid_state_transition"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrAccountLocked):
		return "account_locked"
	default:
		return "internal"
	}
}
