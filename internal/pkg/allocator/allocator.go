package allocator

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

const (
	// USDT carries 6 decimals on chain; invoices are disambiguated at the
	// 4th decimal place, so one addition step is 100 minor units.
	USDTDecimals  = 6
	unitsPerMinor = 1_000_000
	additionStep  = 100

	// Addition draws cover 0.0001 .. 0.0099 inclusive.
	additionMin = 1
	additionMax = 99

	// ReservationWindow is how long an allocated amount stays reserved.
	ReservationWindow = 24 * time.Hour

	// maxAttempts bounds the redraw loop. The addition space holds 99 values,
	// so hitting this cap means the window is effectively exhausted.
	maxAttempts = 256
)

// ErrAllocationExhausted is returned when no unique amount could be reserved
// within the attempt budget.
var ErrAllocationExhausted = errors.New("allocator: no unique amount available in reservation window")

// Allocation is a reserved, currently-unique payment amount.
type Allocation struct {
	Units   int64  // exact amount in USDT minor units
	Display string // 4-decimal string as shown to the payer, e.g. "1.2107"
}

// Allocator hands out payment amounts that are unique among all amounts
// reserved in the trailing 24 hours. Uniqueness is enforced by the
// used_amounts primary key, so concurrent callers can never both commit the
// same candidate; losers simply redraw.
type Allocator struct {
	repo      repository.UsedAmountRepository
	baseUnits int64

	draw func() int64 // returns an addition in minor units
}

// New creates an allocator over the given reservation repository. The base
// amount is PRODUCT_PRICE plus TRACKING_FEE from the environment.
func New(repo repository.UsedAmountRepository) *Allocator {
	price, err := ParseAmount(env.GetEnv("PRODUCT_PRICE", "1"))
	if err != nil {
		log.Errorf("[Allocator] invalid PRODUCT_PRICE, falling back to 1: %v", err)
		price = 1 * unitsPerMinor
	}
	fee, err := ParseAmount(env.GetEnv("TRACKING_FEE", "0.21"))
	if err != nil {
		log.Errorf("[Allocator] invalid TRACKING_FEE, falling back to 0.21: %v", err)
		fee = 210_000
	}
	return NewWithBase(repo, price+fee)
}

// NewWithBase creates an allocator with an explicit base amount in minor units.
func NewWithBase(repo repository.UsedAmountRepository, baseUnits int64) *Allocator {
	return &Allocator{
		repo:      repo,
		baseUnits: baseUnits,
		draw: func() int64 {
			return int64(additionMin+rand.Intn(additionMax)) * additionStep
		},
	}
}

// Allocate reserves and returns an amount unique within the reservation
// window. Candidates are drawn until one wins both the window check and the
// primary-key insert; after maxAttempts draws it gives up with
// ErrAllocationExhausted.
func (a *Allocator) Allocate() (*Allocation, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		units := a.baseUnits + a.draw()
		display := FormatUnits(units)

		exists, err := a.repo.ExistsWithin(display, ReservationWindow)
		if err != nil {
			return nil, fmt.Errorf("allocator: window check failed: %w", err)
		}
		if exists {
			continue
		}

		err = a.repo.Reserve(display, time.Now())
		if errors.Is(err, repository.ErrAmountTaken) {
			// Lost the insert race to a concurrent allocation; redraw.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("allocator: reserve failed: %w", err)
		}

		return &Allocation{Units: units, Display: display}, nil
	}
	return nil, ErrAllocationExhausted
}

// Sweep deletes reservations older than the reservation window. The monitor
// manager runs this hourly to bound storage growth.
func (a *Allocator) Sweep() {
	deleted, err := a.repo.DeleteOlderThan(ReservationWindow)
	if err != nil {
		log.Errorf("[Allocator] reservation sweep failed: %v", err)
		return
	}
	if deleted > 0 {
		log.Infof("[Allocator] swept %d expired amount reservations", deleted)
	}
}

// FormatUnits renders minor units as the 4-decimal display string payers see.
func FormatUnits(units int64) string {
	return fmt.Sprintf("%d.%04d", units/unitsPerMinor, (units%unitsPerMinor)/additionStep)
}

// ParseAmount converts a decimal USDT string with up to 6 fractional digits
// into minor units.
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty amount")
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > USDTDecimals {
		return 0, fmt.Errorf("amount %q has more than %d decimals", s, USDTDecimals)
	}
	frac += strings.Repeat("0", USDTDecimals-len(frac))

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return w*unitsPerMinor + f, nil
}
