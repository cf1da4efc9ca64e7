package monitor

import (
	"fmt"
	"sync"
	"time"
)

// ActiveTransaction is the transient projection of a pending transaction
// owned by its monitor task: presentation handles plus the task's mutable
// cursor state. It exists from admission until the task exits.
type ActiveTransaction struct {
	TransactionID string
	UserID        string
	Amount        int64  // exact reserved amount in USDT minor units
	DisplayAmount string // 4-decimal string shown to the payer
	MessageID     string
	ChannelID     string
	TaskID        string // uuid, for log correlation

	StartedAt time.Time

	// Mutable cursor state, touched only by the owning task.
	lastRefresh time.Time
	lastBlock   string

	cancelOnce sync.Once
	cancelCh   chan struct{}
}

// Cancel signals the owning task to stop without performing a terminal
// transition of its own. Safe to call more than once.
func (a *ActiveTransaction) Cancel() {
	a.cancelOnce.Do(func() { close(a.cancelCh) })
}

// Cancelled returns the channel closed by Cancel.
func (a *ActiveTransaction) Cancelled() <-chan struct{} {
	return a.cancelCh
}

// Registry is the synchronized index of currently-open transactions keyed by
// their allocated amount. The creation flow inserts; each task removes only
// its own entry on its terminal transition.
type Registry struct {
	mu       sync.Mutex
	byAmount map[int64]*ActiveTransaction
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{byAmount: make(map[int64]*ActiveTransaction)}
}

// Add admits an active transaction. The allocator guarantees amount
// uniqueness among open invoices, so a collision here is a programming error.
func (r *Registry) Add(at *ActiveTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byAmount[at.Amount]; ok {
		return fmt.Errorf("monitor: amount %d already registered", at.Amount)
	}
	r.byAmount[at.Amount] = at
	return nil
}

// GetByAmount looks up the open transaction reserved at exactly this amount
func (r *Registry) GetByAmount(amount int64) (*ActiveTransaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.byAmount[amount]
	return at, ok
}

// GetByTransactionID scans for the open transaction with the given id
func (r *Registry) GetByTransactionID(transactionID string) (*ActiveTransaction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, at := range r.byAmount {
		if at.TransactionID == transactionID {
			return at, true
		}
	}
	return nil, false
}

// Remove drops the entry for the amount, if present
func (r *Registry) Remove(amount int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byAmount, amount)
}

// Len returns the number of currently-open transactions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byAmount)
}
