package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/allocator"
	"github.com/ManuelReschke/PayFox/internal/pkg/monitor"
	"github.com/ManuelReschke/PayFox/internal/pkg/notify"
)

type memTxRepo struct {
	mu  sync.Mutex
	txs map[string]*models.Transaction
}

func newMemTxRepo() *memTxRepo {
	return &memTxRepo{txs: make(map[string]*models.Transaction)}
}

func (m *memTxRepo) Create(tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[tx.TransactionID]; ok {
		return repository.ErrDuplicateTransaction
	}
	cp := *tx
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.txs[tx.TransactionID] = &cp
	return nil
}

func (m *memTxRepo) GetByTransactionID(transactionID string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[transactionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *memTxRepo) GetWithAuditLogs(transactionID string) (*models.Transaction, []models.AuditLog, error) {
	tx, err := m.GetByTransactionID(transactionID)
	if err != nil {
		return nil, nil, err
	}
	return tx, nil, nil
}

// UpdateStatus mirrors the store's guarded transition: only pending rows move.
func (m *memTxRepo) UpdateStatus(transactionID, status string, productKey *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[transactionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if tx.Status != models.TxStatusPending {
		return repository.ErrInvalidStateTransition
	}
	tx.Status = status
	if status == models.TxStatusCompleted {
		tx.ProductKey = productKey
		now := time.Now()
		tx.PaidAt = &now
	}
	return nil
}

func (m *memTxRepo) ListByStatus(status string, offset, limit int) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transaction
	for _, tx := range m.txs {
		if tx.Status == status {
			out = append(out, *tx)
		}
	}
	return out, nil
}

func (m *memTxRepo) Count() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.txs)), nil
}

type memCooldownRepo struct {
	mu       sync.Mutex
	lastUsed map[string]time.Time
}

func newMemCooldownRepo() *memCooldownRepo {
	return &memCooldownRepo{lastUsed: make(map[string]time.Time)}
}

func (m *memCooldownRepo) Get(userID string) (*models.Cooldown, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.lastUsed[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.Cooldown{UserID: userID, LastUsed: at}, nil
}

func (m *memCooldownRepo) Upsert(userID string, lastUsed time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUsed[userID] = lastUsed
	return nil
}

type memUsedAmountRepo struct {
	mu       sync.Mutex
	reserved map[string]time.Time
}

func newMemUsedAmountRepo() *memUsedAmountRepo {
	return &memUsedAmountRepo{reserved: make(map[string]time.Time)}
}

func (m *memUsedAmountRepo) Reserve(amount string, createdAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reserved[amount]; ok {
		return repository.ErrAmountTaken
	}
	m.reserved[amount] = createdAt
	return nil
}

func (m *memUsedAmountRepo) ExistsWithin(amount string, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.reserved[amount]
	return ok && time.Since(at) < window, nil
}

func (m *memUsedAmountRepo) DeleteOlderThan(time.Duration) (int64, error) { return 0, nil }

func (m *memUsedAmountRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reserved)
}

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (r *recordingAuditor) Append(_, action, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
}

func (r *recordingAuditor) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

type recordingSink struct {
	renders   []notify.RenderState
	dms       []notify.DirectMessage
	renderErr error
	dmErr     error
}

func (r *recordingSink) Render(state notify.RenderState) error {
	r.renders = append(r.renders, state)
	return r.renderErr
}

func (r *recordingSink) NotifyDirect(_ string, msg notify.DirectMessage) error {
	r.dms = append(r.dms, msg)
	return r.dmErr
}

type recordingMembership struct {
	granted []string
	err     error
}

func (r *recordingMembership) GrantRole(userID string) error {
	r.granted = append(r.granted, userID)
	return r.err
}

type recordingMonitor struct {
	watched   []*monitor.ActiveTransaction
	cancelled []string
	watchErr  error
}

func (r *recordingMonitor) Watch(at *monitor.ActiveTransaction) error {
	if r.watchErr != nil {
		return r.watchErr
	}
	r.watched = append(r.watched, at)
	return nil
}

func (r *recordingMonitor) CancelWatch(transactionID string) bool {
	r.cancelled = append(r.cancelled, transactionID)
	return true
}

type serviceHarness struct {
	svc        *Service
	txRepo     *memTxRepo
	cooldowns  *memCooldownRepo
	reserved   *memUsedAmountRepo
	auditor    *recordingAuditor
	sink       *recordingSink
	membership *recordingMembership
	monitor    *recordingMonitor
	clock      time.Time
}

func newServiceHarness(t *testing.T) *serviceHarness {
	t.Helper()

	h := &serviceHarness{
		txRepo:     newMemTxRepo(),
		cooldowns:  newMemCooldownRepo(),
		reserved:   newMemUsedAmountRepo(),
		auditor:    &recordingAuditor{},
		sink:       &recordingSink{},
		membership: &recordingMembership{},
		monitor:    &recordingMonitor{},
		clock:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	alloc := allocator.NewWithBase(h.reserved, 1_210_000)
	h.svc = NewService(h.txRepo, h.cooldowns, alloc, h.auditor, h.sink, h.membership, nil)
	h.svc.walletAddress = "0xWALLET"
	h.svc.now = func() time.Time { return h.clock }
	h.svc.genTxID = func() (string, error) { return "txFIXED0001", nil }
	h.svc.genKey = func() (string, error) { return "AAAA-BBBB-CCCC-DDDD", nil }
	h.svc.AttachMonitor(h.monitor)
	return h
}

func TestCreateInvoice(t *testing.T) {
	h := newServiceHarness(t)

	inv, err := h.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{
		UserID:    "user-1",
		MessageID: "msg-9",
		ChannelID: "chan-3",
	})
	require.NoError(t, err)

	assert.Equal(t, "txFIXED0001", inv.TransactionID)
	assert.Equal(t, "0xWALLET", inv.WalletAddress)
	assert.Equal(t, h.clock.Add(monitor.TimeLimit), inv.ExpiresAt)
	assert.Equal(t, allocator.FormatUnits(inv.Amount), inv.DisplayAmount)

	// Pending row persisted with the reserved amount.
	tx, err := h.txRepo.GetByTransactionID("txFIXED0001")
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, tx.Status)
	assert.Equal(t, inv.Amount, tx.Amount)
	assert.Nil(t, tx.ProductKey)

	// CREATED is the first entry of the audit trail, instructions DM follows.
	actions := h.auditor.all()
	require.NotEmpty(t, actions)
	assert.Equal(t, models.AuditActionCreated, actions[0])
	assert.Contains(t, actions, models.AuditActionDMSent)

	// Monitor admitted with matching identity, cooldown marked.
	require.Len(t, h.monitor.watched, 1)
	assert.Equal(t, inv.Amount, h.monitor.watched[0].Amount)
	assert.Equal(t, "msg-9", h.monitor.watched[0].MessageID)
	_, err = h.cooldowns.Get("user-1")
	assert.NoError(t, err)

	require.Len(t, h.sink.dms, 1)
	assert.Contains(t, h.sink.dms[0].Body, inv.DisplayAmount)
}

func TestCreateInvoice_RequiresUserID(t *testing.T) {
	h := newServiceHarness(t)

	_, err := h.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{UserID: "   "})
	assert.Error(t, err)
	assert.Equal(t, 0, h.reserved.count())
}

func TestCreateInvoice_CooldownRejected(t *testing.T) {
	h := newServiceHarness(t)
	require.NoError(t, h.cooldowns.Upsert("user-1", h.clock.Add(-10*time.Minute)))

	_, err := h.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{UserID: "user-1"})
	require.ErrorIs(t, err, ErrCooldownRejected)

	var rejected *CooldownRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, 20*time.Minute, rejected.Remaining)

	// A rejected creation consumes no amount reservation and starts no task.
	assert.Equal(t, 0, h.reserved.count())
	assert.Empty(t, h.monitor.watched)
	assert.Empty(t, h.auditor.all())
}

func TestCreateInvoice_CooldownExpired(t *testing.T) {
	h := newServiceHarness(t)
	require.NoError(t, h.cooldowns.Upsert("user-1", h.clock.Add(-CooldownWindow-time.Second)))

	_, err := h.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{UserID: "user-1"})
	assert.NoError(t, err)
}

func TestCreateInvoice_WatchFailureKeepsPendingRow(t *testing.T) {
	h := newServiceHarness(t)
	h.monitor.watchErr = assert.AnError

	inv, err := h.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{UserID: "user-1"})
	require.NoError(t, err, "a monitor admission failure must not fail the creation")

	tx, err := h.txRepo.GetByTransactionID(inv.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusPending, tx.Status)
}

func TestCancel(t *testing.T) {
	h := newServiceHarness(t)
	inv, err := h.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{UserID: "user-1"})
	require.NoError(t, err)

	require.NoError(t, h.svc.Cancel(context.Background(), inv.TransactionID, "admin-7"))

	tx, err := h.txRepo.GetByTransactionID(inv.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCancelled, tx.Status)
	assert.Contains(t, h.auditor.all(), models.AuditActionCancelled)
	assert.Equal(t, []string{inv.TransactionID}, h.monitor.cancelled)

	require.NotEmpty(t, h.sink.renders)
	last := h.sink.renders[len(h.sink.renders)-1]
	assert.Equal(t, notify.StateCancelled, last.State)
}

func TestCancel_NotFound(t *testing.T) {
	h := newServiceHarness(t)
	err := h.svc.Cancel(context.Background(), "missing", "admin-7")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_AlreadyTerminal(t *testing.T) {
	h := newServiceHarness(t)
	inv, err := h.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{UserID: "user-1"})
	require.NoError(t, err)
	require.NoError(t, h.svc.Cancel(context.Background(), inv.TransactionID, "admin-7"))

	err = h.svc.Cancel(context.Background(), inv.TransactionID, "admin-7")
	assert.ErrorIs(t, err, repository.ErrInvalidStateTransition)

	tx, err := h.txRepo.GetByTransactionID(inv.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCancelled, tx.Status, "terminal state never moves again")
}

func TestResendKey(t *testing.T) {
	h := newServiceHarness(t)
	key := "AAAA-BBBB-CCCC-DDDD"
	require.NoError(t, h.txRepo.Create(&models.Transaction{
		TransactionID: "txDONE",
		UserID:        "user-1",
		Amount:        1_210_700,
		DisplayAmount: "1.2107",
		Status:        models.TxStatusCompleted,
		ProductKey:    &key,
	}))

	require.NoError(t, h.svc.ResendKey(context.Background(), "txDONE", "admin-7"))

	require.Len(t, h.sink.dms, 1)
	assert.Equal(t, key, h.sink.dms[0].ProductKey)
	assert.Contains(t, h.auditor.all(), models.AuditActionKeyResent)
}

func TestResendKey_NoKey(t *testing.T) {
	h := newServiceHarness(t)
	require.NoError(t, h.txRepo.Create(&models.Transaction{
		TransactionID: "txPENDING",
		UserID:        "user-1",
		Status:        models.TxStatusPending,
	}))

	err := h.svc.ResendKey(context.Background(), "txPENDING", "admin-7")
	assert.ErrorIs(t, err, ErrNoProductKey)
}

func TestResendKey_DMFailure(t *testing.T) {
	h := newServiceHarness(t)
	key := "AAAA-BBBB-CCCC-DDDD"
	require.NoError(t, h.txRepo.Create(&models.Transaction{
		TransactionID: "txDONE",
		UserID:        "user-1",
		Status:        models.TxStatusCompleted,
		ProductKey:    &key,
	}))
	h.sink.dmErr = assert.AnError

	err := h.svc.ResendKey(context.Background(), "txDONE", "admin-7")
	assert.Error(t, err)
	assert.Contains(t, h.auditor.all(), models.AuditActionDMFailed)
	assert.NotContains(t, h.auditor.all(), models.AuditActionKeyResent)
}

func TestInspect_NotFound(t *testing.T) {
	h := newServiceHarness(t)
	_, err := h.svc.Inspect(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettle(t *testing.T) {
	h := newServiceHarness(t)
	inv, err := h.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{UserID: "user-1"})
	require.NoError(t, err)

	at := &monitor.ActiveTransaction{
		TransactionID: inv.TransactionID,
		UserID:        "user-1",
		Amount:        inv.Amount,
		DisplayAmount: inv.DisplayAmount,
	}
	h.svc.Settle(at, "0xhash")

	tx, err := h.txRepo.GetByTransactionID(inv.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCompleted, tx.Status)
	require.NotNil(t, tx.ProductKey)
	assert.Equal(t, "AAAA-BBBB-CCCC-DDDD", *tx.ProductKey)
	assert.NotNil(t, tx.PaidAt)

	actions := h.auditor.all()
	assert.Contains(t, actions, models.AuditActionCompleted)
	assert.Contains(t, actions, models.AuditActionRoleAdded)
	assert.Equal(t, []string{"user-1"}, h.membership.granted)

	// Success render carries the key, and the key is delivered by DM.
	require.NotEmpty(t, h.sink.renders)
	last := h.sink.renders[len(h.sink.renders)-1]
	assert.Equal(t, notify.StateSuccess, last.State)
	assert.Equal(t, "AAAA-BBBB-CCCC-DDDD", last.ProductKey)
	lastDM := h.sink.dms[len(h.sink.dms)-1]
	assert.Equal(t, "AAAA-BBBB-CCCC-DDDD", lastDM.ProductKey)
}

func TestSettle_AlreadyTerminal(t *testing.T) {
	h := newServiceHarness(t)
	inv, err := h.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{UserID: "user-1"})
	require.NoError(t, err)
	require.NoError(t, h.svc.Cancel(context.Background(), inv.TransactionID, "admin-7"))

	renders := len(h.sink.renders)
	h.svc.Settle(&monitor.ActiveTransaction{
		TransactionID: inv.TransactionID,
		UserID:        "user-1",
	}, "0xhash")

	// The cancellation won; no key is stored and no success is rendered.
	tx, err := h.txRepo.GetByTransactionID(inv.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCancelled, tx.Status)
	assert.Nil(t, tx.ProductKey)
	assert.Len(t, h.sink.renders, renders)
	assert.NotContains(t, h.auditor.all(), models.AuditActionCompleted)
}

func TestSettle_GrantRoleFailureIsAbsorbed(t *testing.T) {
	h := newServiceHarness(t)
	inv, err := h.svc.CreateInvoice(context.Background(), CreateInvoiceRequest{UserID: "user-1"})
	require.NoError(t, err)
	h.membership.err = assert.AnError

	h.svc.Settle(&monitor.ActiveTransaction{
		TransactionID: inv.TransactionID,
		UserID:        "user-1",
		Amount:        inv.Amount,
		DisplayAmount: inv.DisplayAmount,
	}, "0xhash")

	// The completed state stands even though the role grant failed.
	tx, err := h.txRepo.GetByTransactionID(inv.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TxStatusCompleted, tx.Status)
	actions := h.auditor.all()
	assert.Contains(t, actions, models.AuditActionError)
	assert.NotContains(t, actions, models.AuditActionRoleAdded)
	assert.Contains(t, actions, models.AuditActionDMSent)
}
