package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Ledger owns the account map and the deposit history. It is not safe
// for concurrent use; Router serializes access to it.
type Ledger struct {
	accounts map[ClientID]*Account
	deposits map[TxID]*deposit
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		accounts: make(map[ClientID]*Account),
		deposits: make(map[TxID]*deposit),
	}
}

// account returns the client's account, materializing it on first use.
func (l *Ledger) account(id ClientID) *Account {
	acc, ok := l.accounts[id]
	if !ok {
		acc = &Account{
			Client:    id,
			Available: decimal.Zero,
			Held:      decimal.Zero,
		}
		l.accounts[id] = acc
	}
	return acc
}

// lookup returns the account without creating it. Reference kinds must
// never materialize accounts for clients that only appear on bogus
// disputes.
func (l *Ledger) lookup(id ClientID) (*Account, bool) {
	acc, ok := l.accounts[id]
	return acc, ok
}

// reference resolves the deposit a Dispute/Resolve/Chargeback points
// at and checks it belongs to the claiming client.
func (l *Ledger) reference(rec Record) (*deposit, error) {
	dep, ok := l.deposits[rec.Tx]
	if !ok {
		return nil, ErrUnknownReference
	}
	if dep.client != rec.Client {
		return nil, ErrOwnerMismatch
	}
	return dep, nil
}

func (l *Ledger) deposit(acc *Account, rec Record) error {
	if _, used := l.deposits[rec.Tx]; used {
		return ErrDuplicateTransaction
	}
	acc.Available = acc.Available.Add(rec.Amount)
	l.deposits[rec.Tx] = &deposit{client: rec.Client, amount: rec.Amount}
	return nil
}

func (l *Ledger) withdraw(acc *Account, rec Record) error {
	if _, used := l.deposits[rec.Tx]; used {
		return ErrDuplicateTransaction
	}
	if acc.Available.LessThan(rec.Amount) {
		return ErrInsufficientFunds
	}
	acc.Available = acc.Available.Sub(rec.Amount)
	return nil
}

func (l *Ledger) dispute(dep *deposit) error {
	if dep.disputed {
		return ErrInvalidStateTransition
	}
	// The account exists: the stored deposit created it.
	acc := l.account(dep.client)
	acc.Available = acc.Available.Sub(dep.amount)
	acc.Held = acc.Held.Add(dep.amount)
	dep.disputed = true
	return nil
}

func (l *Ledger) resolve(dep *deposit) error {
	if !dep.disputed {
		return ErrInvalidStateTransition
	}
	acc := l.account(dep.client)
	acc.Available = acc.Available.Add(dep.amount)
	acc.Held = acc.Held.Sub(dep.amount)
	dep.disputed = false
	return nil
}

func (l *Ledger) chargeback(dep *deposit) error {
	if !dep.disputed {
		return ErrInvalidStateTransition
	}
	acc := l.account(dep.client)
	acc.Held = acc.Held.Sub(dep.amount)
	acc.Locked = true
	dep.disputed = false
	return nil
}

// Snapshot returns a copy of every account, sorted by client id so
// downstream rendering is deterministic.
func (l *Ledger) Snapshot() []Account {
	out := make([]Account, 0, len(l.accounts))
	for _, acc := range l.accounts {
		out = append(out, *acc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Client < out[j].Client })
	return out
}
