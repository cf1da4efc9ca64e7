package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/notify"
)

// watcher runs one monitor task for one open transaction. It ticks until the
// payment is matched, the time limit is reached, the transaction is cancelled
// out-of-band, or the manager shuts down.
type watcher struct {
	active   *ActiveTransaction
	registry *Registry
	deps     Deps

	tick         time.Duration
	timeLimit    time.Duration
	refreshEvery time.Duration

	now    func() time.Time
	stopCh chan struct{}
}

func (w *watcher) run() {
	at := w.active
	log.Infof("[Monitor] task %s watching tx %s (amount %s)", at.TaskID, at.TransactionID, at.DisplayAmount)

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()
	defer w.registry.Remove(at.Amount)

	for {
		select {
		case <-w.stopCh:
			// Manager shutdown. No terminal transition: the transaction stays
			// pending and is resumed on the next start.
			log.Infof("[Monitor] task %s stopping with tx %s still pending", at.TaskID, at.TransactionID)
			return
		case <-at.Cancelled():
			// Cancelled out-of-band; the canceller already persisted the
			// terminal state and audited it.
			log.Infof("[Monitor] task %s exiting, tx %s cancelled", at.TaskID, at.TransactionID)
			return
		case <-ticker.C:
			if done := w.step(); done {
				return
			}
		}
	}
}

// step runs one tick and reports whether the task is finished.
func (w *watcher) step() bool {
	d := w.deps
	at := w.active
	now := w.now()
	elapsed := now.Sub(at.StartedAt)
	remaining := w.timeLimit - elapsed

	// Time limit takes priority over polling.
	if remaining <= 0 {
		return w.expire()
	}

	if now.Sub(at.lastRefresh) >= w.refreshEvery {
		state := notify.RenderState{
			TransactionID: at.TransactionID,
			UserID:        at.UserID,
			MessageID:     at.MessageID,
			ChannelID:     at.ChannelID,
			Amount:        at.DisplayAmount,
			WalletAddress: d.WalletAddress,
			State:         notify.StateWaiting,
			Remaining:     remaining,
		}
		if err := d.Sink.Render(state); err != nil {
			d.Auditor.Append(at.TransactionID, models.AuditActionError, fmt.Sprintf("Failed to render waiting update: %v", err))
		}
		at.lastRefresh = now
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.tick)
	defer cancel()

	d.Stats.Poll()
	transfers, err := d.API.TokenTransfers(ctx, at.lastBlock)
	if err != nil {
		// Transient by definition; the next tick retries.
		d.Stats.Error()
		d.Auditor.Append(at.TransactionID, models.AuditActionMonitorError, fmt.Sprintf("Error: %v", err))
		return false
	}
	if len(transfers) == 0 {
		return false
	}

	// Newest-first ordering: the head carries the newest block. Advance the
	// cursor even without a match so reviewed records are not re-fetched.
	at.lastBlock = transfers[0].BlockNumber

	for _, tx := range transfers {
		value, perr := strconv.ParseInt(tx.Value, 10, 64)
		if perr != nil {
			continue
		}
		if value == at.Amount {
			d.Stats.Match()
			d.Auditor.Append(at.TransactionID, models.AuditActionPaymentDetected, fmt.Sprintf("Transaction hash: %s", tx.Hash))
			d.Settler.Settle(at, tx.Hash)
			return true
		}
	}
	return false
}

// expire performs the expiry transition. The guarded status update decides
// the race against an out-of-band cancellation: whoever commits first wins
// and the loser backs off without side effects.
func (w *watcher) expire() bool {
	d := w.deps
	at := w.active

	err := d.Transactions.UpdateStatus(at.TransactionID, models.TxStatusExpired, nil)
	if errors.Is(err, repository.ErrInvalidStateTransition) {
		log.Infof("[Monitor] task %s: tx %s already terminal, skipping expiry", at.TaskID, at.TransactionID)
		return true
	}
	if err != nil {
		// Store unavailable; keep the task alive and retry on the next tick.
		d.Auditor.Append(at.TransactionID, models.AuditActionMonitorError, fmt.Sprintf("Failed to persist expiry: %v", err))
		return false
	}

	d.Stats.Expiry()
	d.Auditor.Append(at.TransactionID, models.AuditActionExpired, "Transaction time limit reached")

	state := notify.RenderState{
		TransactionID: at.TransactionID,
		UserID:        at.UserID,
		MessageID:     at.MessageID,
		ChannelID:     at.ChannelID,
		Amount:        at.DisplayAmount,
		WalletAddress: d.WalletAddress,
		State:         notify.StateExpired,
	}
	if err := d.Sink.Render(state); err != nil {
		d.Auditor.Append(at.TransactionID, models.AuditActionError, fmt.Sprintf("Failed to render expiry: %v", err))
	}
	return true
}
