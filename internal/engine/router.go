package engine

import "sync"

// Router validates structural preconditions and dispatches each record
// to the ledger mutation for its kind. Every rejection is an error
// value local to the offending record; the stream is never aborted.
//
// A single mutex serializes Apply and Snapshot so one engine can be
// shared between the batch path and the HTTP surface.
type Router struct {
	mu     sync.Mutex
	ledger *Ledger
}

// New creates a router over a fresh ledger.
func New() *Router {
	return &Router{ledger: NewLedger()}
}

// Apply runs one transaction through the state machine.
//
// Validation order: amount shape, account lock, reference resolution,
// then the kind-specific precondition inside the ledger mutation.
func (r *Router) Apply(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch rec.Kind {
	case Deposit, Withdrawal:
		if !rec.HasAmount || rec.Amount.IsNegative() {
			return ErrMalformedRecord
		}
		// Deposits and withdrawals never fail for "account not found";
		// the account is materialized on demand.
		acc := r.ledger.account(rec.Client)
		if acc.Locked {
			return ErrAccountLocked
		}
		if rec.Kind == Deposit {
			return r.ledger.deposit(acc, rec)
		}
		return r.ledger.withdraw(acc, rec)

	case Dispute, Resolve, Chargeback:
		if acc, ok := r.ledger.lookup(rec.Client); ok && acc.Locked {
			return ErrAccountLocked
		}
		dep, err := r.ledger.reference(rec)
		if err != nil {
			return err
		}
		switch rec.Kind {
		case Dispute:
			return r.ledger.dispute(dep)
		case Resolve:
			return r.ledger.resolve(dep)
		default:
			return r.ledger.chargeback(dep)
		}

	default:
		return ErrMalformedRecord
	}
}

// Snapshot returns the final account mapping for reporting.
func (r *Router) Snapshot() []Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.Snapshot()
}

// Account returns a single client's account if it exists.
func (r *Router) Account(id ClientID) (Account, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.ledger.lookup(id)
	if !ok {
		return Account{}, false
	}
	return *acc, true
}
