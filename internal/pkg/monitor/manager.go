package monitor

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/allocator"
	"github.com/ManuelReschke/PayFox/internal/pkg/audit"
	"github.com/ManuelReschke/PayFox/internal/pkg/etherscan"
	metrics "github.com/ManuelReschke/PayFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/PayFox/internal/pkg/notify"
)

const (
	// TickInterval is the monitor poll cadence.
	TickInterval = 10 * time.Second
	// TimeLimit is the wall-clock deadline per transaction.
	TimeLimit = 30 * time.Minute
	// RefreshInterval is how often the waiting presentation is re-rendered.
	RefreshInterval = 30 * time.Second

	sweepInterval = 1 * time.Hour
	flushInterval = 5 * time.Minute
)

// Settler finalizes a matched payment: key generation, completed status,
// notifications. Implemented by the payment service.
type Settler interface {
	Settle(at *ActiveTransaction, transferHash string)
}

// Stats receives monitor telemetry increments.
type Stats interface {
	Poll()
	Match()
	Expiry()
	Error()
}

// Deps are the injected collaborators shared by all monitor tasks.
type Deps struct {
	API           etherscan.API
	Sink          notify.Sink
	Settler       Settler
	Auditor       audit.Auditor
	Transactions  repository.TransactionRepository
	Stats         Stats
	WalletAddress string
}

// Manager owns the transaction registry and the background tasks around it:
// one watcher goroutine per open transaction, the hourly reservation sweep
// and the periodic counter flush.
type Manager struct {
	registry  *Registry
	deps      Deps
	alloc     *allocator.Allocator
	statsRepo repository.MonitorStatRepository

	tick         time.Duration
	timeLimit    time.Duration
	refreshEvery time.Duration
	now          func() time.Time

	sweepTicker *time.Ticker
	flushTicker *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool
}

// NewManager creates a monitor manager with default intervals.
func NewManager(deps Deps, alloc *allocator.Allocator, statsRepo repository.MonitorStatRepository) *Manager {
	if deps.Stats == nil {
		deps.Stats = redisStats{}
	}
	return &Manager{
		registry:     NewRegistry(),
		deps:         deps,
		alloc:        alloc,
		statsRepo:    statsRepo,
		tick:         TickInterval,
		timeLimit:    TimeLimit,
		refreshEvery: RefreshInterval,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// Registry exposes the shared open-transaction index.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Start starts the background tickers. Watchers are started individually by
// Watch as transactions are admitted.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[Monitor Manager] Starting background tasks")

	m.sweepTicker = time.NewTicker(sweepInterval)
	m.wg.Add(1)
	go m.sweepWorker()

	m.flushTicker = time.NewTicker(flushInterval)
	m.wg.Add(1)
	go m.flushWorker()

	log.Info("[Monitor Manager] Started successfully")
}

// Stop stops all watchers and background tasks and waits for them to exit.
// Open transactions stay pending and are picked up again by ResumePending.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[Monitor Manager] Stopping background tasks...")
	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
	}
	if m.flushTicker != nil {
		m.flushTicker.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()
	log.Info("[Monitor Manager] All tasks stopped")
}

// Watch admits a pending transaction and starts its monitor task.
func (m *Manager) Watch(at *ActiveTransaction) error {
	if at.TaskID == "" {
		at.TaskID = uuid.NewString()
	}
	if at.StartedAt.IsZero() {
		at.StartedAt = m.now()
	}
	if at.lastBlock == "" {
		at.lastBlock = etherscan.StartBlockLatest
	}
	at.cancelCh = make(chan struct{})

	if err := m.registry.Add(at); err != nil {
		return err
	}

	w := &watcher{
		active:       at,
		registry:     m.registry,
		deps:         m.deps,
		tick:         m.tick,
		timeLimit:    m.timeLimit,
		refreshEvery: m.refreshEvery,
		now:          m.now,
		stopCh:       m.stopCh,
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		w.run()
	}()
	return nil
}

// CancelWatch signals the task for the transaction to exit without its own
// terminal transition. Returns false when no task is watching that id.
func (m *Manager) CancelWatch(transactionID string) bool {
	at, ok := m.registry.GetByTransactionID(transactionID)
	if !ok {
		return false
	}
	at.Cancel()
	return true
}

// ResumePending re-admits transactions that were pending when the process
// last stopped. Presentation handles are gone at that point; renders still
// carry the transaction id so the chat bridge can locate the message.
func (m *Manager) ResumePending() error {
	pending, err := m.deps.Transactions.ListByStatus(models.TxStatusPending, 0, 500)
	if err != nil {
		return err
	}
	for i := range pending {
		tx := pending[i]
		at := &ActiveTransaction{
			TransactionID: tx.TransactionID,
			UserID:        tx.UserID,
			Amount:        tx.Amount,
			DisplayAmount: tx.DisplayAmount,
			StartedAt:     tx.CreatedAt,
		}
		if err := m.Watch(at); err != nil {
			log.Errorf("[Monitor Manager] failed to resume tx %s: %v", tx.TransactionID, err)
			continue
		}
		log.Infof("[Monitor Manager] resumed monitoring for tx %s", tx.TransactionID)
	}
	return nil
}

// sweepWorker deletes amount reservations older than the reservation window
func (m *Manager) sweepWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.sweepTicker.C:
			m.alloc.Sweep()
		}
	}
}

// flushWorker drains the Redis monitor counters into the daily aggregate
func (m *Manager) flushWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.flushTicker.C:
			if err := metrics.FlushAll(m.statsRepo); err != nil {
				log.Errorf("[Monitor Manager] counter flush failed: %v", err)
			}
		}
	}
}

// redisStats forwards telemetry to the shared Redis counters, best effort.
type redisStats struct{}

func (redisStats) Poll()   { _ = metrics.AddPoll() }
func (redisStats) Match()  { _ = metrics.AddMatch() }
func (redisStats) Expiry() { _ = metrics.AddExpiry() }
func (redisStats) Error()  { _ = metrics.AddError() }
