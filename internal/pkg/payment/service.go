package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/allocator"
	"github.com/ManuelReschke/PayFox/internal/pkg/audit"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/keygen"
	"github.com/ManuelReschke/PayFox/internal/pkg/monitor"
	"github.com/ManuelReschke/PayFox/internal/pkg/notify"
)

// CooldownWindow is the minimum gap between two invoice creations by the
// same user.
const CooldownWindow = 30 * time.Minute

// Monitor is the slice of the monitor manager the service drives.
type Monitor interface {
	Watch(at *monitor.ActiveTransaction) error
	CancelWatch(transactionID string) bool
}

// CreateInvoiceRequest carries the creation parameters from the command
// surface. Message and channel ids are presentation handles the chat bridge
// wants echoed back on render updates.
type CreateInvoiceRequest struct {
	UserID    string
	MessageID string
	ChannelID string
}

// Invoice is the creation result handed back to the command surface.
type Invoice struct {
	TransactionID string    `json:"transaction_id"`
	Amount        int64     `json:"amount"`
	DisplayAmount string    `json:"display_amount"`
	WalletAddress string    `json:"wallet_address"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// TransactionView joins a transaction with its ordered audit trail.
type TransactionView struct {
	Transaction models.Transaction `json:"transaction"`
	AuditLogs   []models.AuditLog  `json:"audit_logs"`
}

// Service implements the payment lifecycle operations behind the command
// surface, and settlement for the monitor's matcher.
type Service struct {
	txRepo       repository.TransactionRepository
	cooldownRepo repository.CooldownRepository
	alloc        *allocator.Allocator
	auditor      audit.Auditor
	sink         notify.Sink
	membership   notify.Membership
	cooldowns    CooldownCache // optional fast path, may be nil
	monitor      Monitor

	walletAddress string

	genTxID func() (string, error)
	genKey  func() (string, error)
	now     func() time.Time
}

// NewService creates a payment service. Attach the monitor manager with
// AttachMonitor before serving requests.
func NewService(
	txRepo repository.TransactionRepository,
	cooldownRepo repository.CooldownRepository,
	alloc *allocator.Allocator,
	auditor audit.Auditor,
	sink notify.Sink,
	membership notify.Membership,
	cooldowns CooldownCache,
) *Service {
	return &Service{
		txRepo:        txRepo,
		cooldownRepo:  cooldownRepo,
		alloc:         alloc,
		auditor:       auditor,
		sink:          sink,
		membership:    membership,
		cooldowns:     cooldowns,
		walletAddress: strings.TrimSpace(env.GetEnv("MERCHANT_ADDRESS", "")),
		genTxID:       keygen.GenerateTransactionID,
		genKey:        keygen.GenerateProductKey,
		now:           time.Now,
	}
}

// AttachMonitor wires the monitor manager. Separate from the constructor
// because the manager needs the service as its settler.
func (s *Service) AttachMonitor(m Monitor) {
	s.monitor = m
}

// CreateInvoice runs the full creation flow: cooldown gate, amount
// allocation, pending row, audit trail, cooldown mark, monitor admission and
// the payment-instruction DM. A failed gate consumes no reservation.
func (s *Service) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	_ = ctx
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, errors.New("user_id is required")
	}

	if remaining, active := s.cooldownRemaining(userID); active {
		return nil, &CooldownRejectedError{Remaining: remaining}
	}

	transactionID, err := s.genTxID()
	if err != nil {
		return nil, fmt.Errorf("generate transaction id: %w", err)
	}

	alloc, err := s.alloc.Allocate()
	if err != nil {
		return nil, err
	}

	tx := &models.Transaction{
		TransactionID: transactionID,
		UserID:        userID,
		Amount:        alloc.Units,
		DisplayAmount: alloc.Display,
		Status:        models.TxStatusPending,
	}
	if err := s.txRepo.Create(tx); err != nil {
		return nil, err
	}

	s.auditor.Append(transactionID, models.AuditActionCreated, fmt.Sprintf("Transaction created by %s", userID))
	s.markCooldown(userID)

	startedAt := s.now()
	at := &monitor.ActiveTransaction{
		TransactionID: transactionID,
		UserID:        userID,
		Amount:        alloc.Units,
		DisplayAmount: alloc.Display,
		MessageID:     req.MessageID,
		ChannelID:     req.ChannelID,
		StartedAt:     startedAt,
	}
	if s.monitor == nil {
		log.Errorf("[Payment] no monitor attached, tx %s will not be watched", transactionID)
	} else if err := s.monitor.Watch(at); err != nil {
		// The pending row stands; ResumePending picks it up after restart.
		log.Errorf("[Payment] failed to start monitor for tx %s: %v", transactionID, err)
	}

	s.sendPaymentInstructions(userID, transactionID, alloc.Display)

	return &Invoice{
		TransactionID: transactionID,
		Amount:        alloc.Units,
		DisplayAmount: alloc.Display,
		WalletAddress: s.walletAddress,
		ExpiresAt:     startedAt.Add(monitor.TimeLimit),
	}, nil
}

// Cancel terminates a pending transaction on behalf of an administrator.
// Cancelling a terminal transaction is refused, never silently applied.
func (s *Service) Cancel(ctx context.Context, transactionID, actor string) error {
	_ = ctx
	tx, err := s.getTransaction(transactionID)
	if err != nil {
		return err
	}

	if err := s.txRepo.UpdateStatus(transactionID, models.TxStatusCancelled, nil); err != nil {
		return err
	}

	s.auditor.Append(transactionID, models.AuditActionCancelled, fmt.Sprintf("Transaction cancelled by admin %s", actor))

	if err := s.sink.Render(notify.RenderState{
		TransactionID: transactionID,
		UserID:        tx.UserID,
		Amount:        tx.DisplayAmount,
		WalletAddress: s.walletAddress,
		State:         notify.StateCancelled,
	}); err != nil {
		s.auditor.Append(transactionID, models.AuditActionError, fmt.Sprintf("Failed to render cancellation: %v", err))
	}

	if s.monitor != nil {
		s.monitor.CancelWatch(transactionID)
	}
	return nil
}

// ResendKey re-delivers the product key of a completed transaction.
func (s *Service) ResendKey(ctx context.Context, transactionID, actor string) error {
	_ = ctx
	tx, err := s.getTransaction(transactionID)
	if err != nil {
		return err
	}
	if tx.ProductKey == nil || *tx.ProductKey == "" {
		return ErrNoProductKey
	}

	msg := notify.DirectMessage{
		TransactionID: transactionID,
		Subject:       "Product Key Resent",
		Body:          "Your product key has been resent by an administrator.",
		ProductKey:    *tx.ProductKey,
		Amount:        tx.DisplayAmount,
	}
	if err := s.sink.NotifyDirect(tx.UserID, msg); err != nil {
		s.auditor.Append(transactionID, models.AuditActionDMFailed, fmt.Sprintf("Failed to resend product key: %v", err))
		return fmt.Errorf("resend key: %w", err)
	}

	s.auditor.Append(transactionID, models.AuditActionKeyResent, fmt.Sprintf("Product key resent by admin %s", actor))
	return nil
}

// Inspect returns a transaction together with its ordered audit trail.
func (s *Service) Inspect(ctx context.Context, transactionID string) (*TransactionView, error) {
	_ = ctx
	tx, logs, err := s.txRepo.GetWithAuditLogs(transactionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &TransactionView{Transaction: *tx, AuditLogs: logs}, nil
}

// Settle finalizes a matched payment. Called from the monitor task after
// PAYMENT_DETECTED. Every failure past the status write is absorbed and
// audited: the payment was received, so the completed state is never rolled
// back because a notification failed.
func (s *Service) Settle(at *monitor.ActiveTransaction, transferHash string) {
	transactionID := at.TransactionID

	productKey, err := s.genKey()
	if err != nil {
		s.auditor.Append(transactionID, models.AuditActionError, fmt.Sprintf("Payment handling error: %v", err))
		return
	}

	err = s.txRepo.UpdateStatus(transactionID, models.TxStatusCompleted, &productKey)
	if errors.Is(err, repository.ErrInvalidStateTransition) {
		// Cancelled between match and settlement; the other transition won.
		s.auditor.Append(transactionID, models.AuditActionError, "Settlement skipped: transaction already terminal")
		return
	}
	if err != nil {
		s.auditor.Append(transactionID, models.AuditActionError, fmt.Sprintf("Payment handling error: %v", err))
		return
	}

	s.auditor.Append(transactionID, models.AuditActionCompleted, "Payment received and verified")

	if err := s.sink.Render(notify.RenderState{
		TransactionID: transactionID,
		UserID:        at.UserID,
		MessageID:     at.MessageID,
		ChannelID:     at.ChannelID,
		Amount:        at.DisplayAmount,
		WalletAddress: s.walletAddress,
		State:         notify.StateSuccess,
		ProductKey:    productKey,
	}); err != nil {
		s.auditor.Append(transactionID, models.AuditActionError, fmt.Sprintf("Failed to render success: %v", err))
	}

	if s.membership != nil {
		if err := s.membership.GrantRole(at.UserID); err != nil {
			s.auditor.Append(transactionID, models.AuditActionError, fmt.Sprintf("Failed to grant role: %v", err))
		} else {
			s.auditor.Append(transactionID, models.AuditActionRoleAdded, "Added purchase role")
		}
	}

	msg := notify.DirectMessage{
		TransactionID: transactionID,
		Subject:       "Purchase Successful!",
		Body:          "Thank you for your purchase!",
		ProductKey:    productKey,
		Amount:        at.DisplayAmount,
		WalletAddress: s.walletAddress,
	}
	if err := s.sink.NotifyDirect(at.UserID, msg); err != nil {
		s.auditor.Append(transactionID, models.AuditActionDMFailed, fmt.Sprintf("Failed to send product key: %v", err))
		return
	}
	s.auditor.Append(transactionID, models.AuditActionDMSent, "Product key sent to user")
}

// getTransaction maps the store's not-found onto the service error.
func (s *Service) getTransaction(transactionID string) (*models.Transaction, error) {
	tx, err := s.txRepo.GetByTransactionID(transactionID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// cooldownRemaining checks the gate: Redis fast path first, the cooldowns
// table as source of truth on miss or cache failure.
func (s *Service) cooldownRemaining(userID string) (time.Duration, bool) {
	if s.cooldowns != nil {
		if active, remaining, err := s.cooldowns.Active(userID); err == nil && active {
			return remaining, true
		}
	}

	cd, err := s.cooldownRepo.Get(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false
	}
	if err != nil {
		// Fail open: a broken gate must not block purchases.
		log.Errorf("[Payment] cooldown lookup failed for %s: %v", userID, err)
		return 0, false
	}

	elapsed := s.now().Sub(cd.LastUsed)
	if elapsed < CooldownWindow {
		return CooldownWindow - elapsed, true
	}
	return 0, false
}

// markCooldown records the creation time in the table and primes the cache.
func (s *Service) markCooldown(userID string) {
	if err := s.cooldownRepo.Upsert(userID, s.now()); err != nil {
		log.Errorf("[Payment] failed to upsert cooldown for %s: %v", userID, err)
	}
	if s.cooldowns != nil {
		if err := s.cooldowns.Mark(userID, CooldownWindow); err != nil {
			log.Warnf("[Payment] failed to cache cooldown for %s: %v", userID, err)
		}
	}
}

// sendPaymentInstructions DMs the payer. Best effort, audited either way.
func (s *Service) sendPaymentInstructions(userID, transactionID, displayAmount string) {
	msg := notify.DirectMessage{
		TransactionID: transactionID,
		Subject:       "Payment Instructions",
		Body: fmt.Sprintf(
			"Send exactly %s USDT (ERC20) to %s. The invoice expires in %d minutes.",
			displayAmount, s.walletAddress, int(monitor.TimeLimit.Minutes()),
		),
		Amount:        displayAmount,
		WalletAddress: s.walletAddress,
	}
	if err := s.sink.NotifyDirect(userID, msg); err != nil {
		s.auditor.Append(transactionID, models.AuditActionDMFailed, "Failed to send payment instructions via DM")
		return
	}
	s.auditor.Append(transactionID, models.AuditActionDMSent, "Payment instructions sent via DM")
}
