package chain

import (
	"context"
	"fmt"
	"sync"

	"justthetip/internal/assets"

	"github.com/shopspring/decimal"
)

// Fake is an in-memory Client for tests. Balances, send outcomes, and
// confirmation statuses are scripted by the test.
type Fake struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	statuses map[string]ConfirmStatus
	invalid  map[string]bool
	sends    []FakeSend
	sendErr  error
	seq      int
}

// FakeSend records one Send call.
type FakeSend struct {
	Destination string
	Amount      decimal.Decimal
	Asset       string
	Signature   string
}

func NewFake() *Fake {
	return &Fake{
		balances: make(map[string]decimal.Decimal),
		statuses: make(map[string]ConfirmStatus),
		invalid:  make(map[string]bool),
	}
}

func balanceKey(address, symbol string) string {
	return address + "/" + symbol
}

// SetBalance scripts the on-chain balance of (address, asset symbol).
func (f *Fake) SetBalance(address, symbol string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[balanceKey(address, symbol)] = amount
}

// SetStatus scripts what Confirm reports for a signature.
func (f *Fake) SetStatus(signature string, status ConfirmStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[signature] = status
}

// FailSends makes every subsequent Send return err. Pass nil to restore.
func (f *Fake) FailSends(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// MarkInvalid makes IsValidAddress reject the given address.
func (f *Fake) MarkInvalid(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalid[address] = true
}

// Sends returns a copy of all recorded sends.
func (f *Fake) Sends() []FakeSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeSend, len(f.sends))
	copy(out, f.sends)
	return out
}

func (f *Fake) GetBalance(_ context.Context, address string, asset assets.Descriptor) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if bal, ok := f.balances[balanceKey(address, asset.Symbol)]; ok {
		return bal, nil
	}
	return decimal.Zero, nil
}

func (f *Fake) Send(_ context.Context, destination string, amount decimal.Decimal, asset assets.Descriptor) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.seq++
	sig := fmt.Sprintf("fake-sig-%d", f.seq)
	f.sends = append(f.sends, FakeSend{
		Destination: destination,
		Amount:      amount,
		Asset:       asset.Symbol,
		Signature:   sig,
	})
	return sig, nil
}

func (f *Fake) Confirm(_ context.Context, signature string) (ConfirmStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if status, ok := f.statuses[signature]; ok {
		return status, nil
	}
	return StatusPending, nil
}

func (f *Fake) IsValidAddress(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return address != "" && !f.invalid[address]
}

func (f *Fake) RequestTestFunds(_ context.Context, address string, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := balanceKey(address, "SOLANA")
	f.balances[key] = f.balances[key].Add(amount)
	f.seq++
	return fmt.Sprintf("fake-airdrop-%d", f.seq), nil
}

var _ Client = (*Fake)(nil)
