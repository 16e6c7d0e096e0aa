// Package sim generates synthetic transaction streams for smoke runs
// and soak tests. Streams are deterministic for a fixed seed.
package sim

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"paystream.org/internal/engine"
)

type depositRef struct {
	tx     engine.TxID
	client engine.ClientID
}

// Generator emits a weighted mix of the five transaction kinds over a
// fixed client population. Disputes reference deposits the generator
// itself emitted, so most records are accepted; a small slice of
// deliberately bogus references exercises the rejection paths.
type Generator struct {
	rnd      *rand.Rand
	clients  int
	nextTx   uint32
	deposits []depositRef
	disputed []depositRef
}

// NewGenerator creates a generator over `clients` accounts. A zero
// seed picks one from the clock.
func NewGenerator(clients int, seed int64) *Generator {
	if clients < 1 {
		clients = 1
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		rnd:     rand.New(rand.NewSource(seed)),
		clients: clients,
	}
}

// Next returns the next synthetic record.
func (g *Generator) Next() engine.Record {
	roll := g.rnd.Intn(100)
	switch {
	case roll < 50:
		return g.deposit()
	case roll < 75:
		return g.withdrawal()
	case roll < 90:
		return g.dispute()
	case roll < 97:
		return g.resolve()
	default:
		return g.chargeback()
	}
}

func (g *Generator) client() engine.ClientID {
	return engine.ClientID(g.rnd.Intn(g.clients) + 1)
}

// amount returns a random value with two fractional digits, up to 1000.00.
func (g *Generator) amount() decimal.Decimal {
	return decimal.New(int64(g.rnd.Intn(100_000)+1), -2)
}

func (g *Generator) deposit() engine.Record {
	g.nextTx++
	rec := engine.Record{
		Kind:      engine.Deposit,
		Client:    g.client(),
		Tx:        engine.TxID(g.nextTx),
		Amount:    g.amount(),
		HasAmount: true,
	}
	g.deposits = append(g.deposits, depositRef{tx: rec.Tx, client: rec.Client})
	return rec
}

func (g *Generator) withdrawal() engine.Record {
	g.nextTx++
	return engine.Record{
		Kind:      engine.Withdrawal,
		Client:    g.client(),
		Tx:        engine.TxID(g.nextTx),
		Amount:    g.amount(),
		HasAmount: true,
	}
}

func (g *Generator) dispute() engine.Record {
	// One dispute in ten cites a transaction that never happened.
	if len(g.deposits) == 0 || g.rnd.Intn(10) == 0 {
		return engine.Record{Kind: engine.Dispute, Client: g.client(), Tx: engine.TxID(g.rnd.Uint32())}
	}
	ref := g.deposits[g.rnd.Intn(len(g.deposits))]
	g.disputed = append(g.disputed, ref)
	return engine.Record{Kind: engine.Dispute, Client: ref.client, Tx: ref.tx}
}

func (g *Generator) resolve() engine.Record {
	if len(g.disputed) == 0 {
		return g.deposit()
	}
	i := g.rnd.Intn(len(g.disputed))
	ref := g.disputed[i]
	g.disputed = append(g.disputed[:i], g.disputed[i+1:]...)
	return engine.Record{Kind: engine.Resolve, Client: ref.client, Tx: ref.tx}
}

func (g *Generator) chargeback() engine.Record {
	if len(g.disputed) == 0 {
		return g.withdrawal()
	}
	i := g.rnd.Intn(len(g.disputed))
	ref := g.disputed[i]
	g.disputed = append(g.disputed[:i], g.disputed[i+1:]...)
	return engine.Record{Kind: engine.Chargeback, Client: ref.client, Tx: ref.tx}
}
