package counter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/PayFox/app/repository"
	"github.com/ManuelReschke/PayFox/internal/pkg/cache"
)

const monitorCountersKey = "payment:counters:monitor"

// Redis hash fields holding pending monitor counter increments
const (
	FieldPolls    = "polls"
	FieldMatches  = "matches"
	FieldExpiries = "expiries"
	FieldErrors   = "errors"
)

// AddPoll increments the pending poll counter in Redis
func AddPoll() error {
	return increment(FieldPolls)
}

// AddMatch increments the pending match counter in Redis
func AddMatch() error {
	return increment(FieldMatches)
}

// AddExpiry increments the pending expiry counter in Redis
func AddExpiry() error {
	return increment(FieldExpiries)
}

// AddError increments the pending monitor error counter in Redis
func AddError() error {
	return increment(FieldErrors)
}

func increment(field string) error {
	ctx := context.Background()
	return cache.GetClient().HIncrBy(ctx, monitorCountersKey, field, 1).Err()
}

// FlushAll drains the pending monitor counters and applies them to the daily
// monitor_stats aggregate. Uses RENAME to a temporary key for atomic drain
// without losing in-flight increments.
func FlushAll(repo repository.MonitorStatRepository) error {
	ctx := context.Background()
	rdb := cache.GetClient()

	tmpKey := fmt.Sprintf("%s:tmp:%d", monitorCountersKey, time.Now().UnixNano())
	if err := rdb.Do(ctx, "RENAME", monitorCountersKey, tmpKey).Err(); err != nil {
		// If key does not exist, nothing to flush
		if strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return nil
		}
		if err.Error() == "redis: nil" {
			return nil
		}
		return err
	}

	// Ensure cleanup of tmpKey even if later steps fail
	defer rdb.Del(ctx, tmpKey)

	data, err := rdb.HGetAll(ctx, tmpKey).Result()
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	read := func(field string) int64 {
		v, ok := data[field]
		if !ok {
			return 0
		}
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil {
			return 0
		}
		return n
	}

	polls, matches, expiries, errs := read(FieldPolls), read(FieldMatches), read(FieldExpiries), read(FieldErrors)
	if polls == 0 && matches == 0 && expiries == 0 && errs == 0 {
		return nil
	}

	statDate := time.Now().UTC().Format("2006-01-02")
	return repo.AddCounts(statDate, polls, matches, expiries, errs)
}
