package audit

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/app/repository"
)

const defaultBuffer = 256

// Auditor is the write side of the audit trail, passed into every component
// that makes an externally observable transition.
type Auditor interface {
	Append(transactionID, action, details string)
}

// Logger appends immutable audit entries without ever blocking or failing the
// caller's primary operation. Entries are queued onto a buffered channel and
// written by a single background goroutine; a full buffer or a failed write is
// reported on the operational log and otherwise dropped.
type Logger struct {
	repo    repository.AuditLogRepository
	entries chan models.AuditLog
	done    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// NewLogger creates and starts an audit logger over the given repository.
func NewLogger(repo repository.AuditLogRepository) *Logger {
	l := &Logger{
		repo:    repo,
		entries: make(chan models.AuditLog, defaultBuffer),
		done:    make(chan struct{}),
	}
	l.wg.Add(1)
	go l.writer()
	return l
}

// Append queues an audit entry for the transaction. Fire-and-forget: the
// caller continues regardless of whether the entry can be persisted.
func (l *Logger) Append(transactionID, action, details string) {
	entry := models.AuditLog{
		TransactionID: transactionID,
		Action:        action,
		Details:       details,
		Timestamp:     time.Now(),
	}
	select {
	case l.entries <- entry:
	default:
		log.Warnf("[Audit] buffer full, dropping entry %s/%s", transactionID, action)
	}
}

// Close stops the writer after draining queued entries.
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.wg.Wait()
	})
}

func (l *Logger) writer() {
	defer l.wg.Done()
	for {
		select {
		case entry := <-l.entries:
			l.write(entry)
		case <-l.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case entry := <-l.entries:
					l.write(entry)
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) write(entry models.AuditLog) {
	if err := l.repo.Append(&entry); err != nil {
		log.Errorf("[Audit] failed to persist entry %s/%s: %v", entry.TransactionID, entry.Action, err)
	}
}
