package service

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/plantops/defect-triage/internal/domain"
)

// TicketPrefix returns the "{code}-{YYYYMMDD}-" prefix for a category and
// creation time. The format is a public, stable contract.
func TicketPrefix(category domain.DefectCategory, t time.Time) string {
	return domain.CategoryCode(category) + "-" + t.Format("20060102") + "-"
}

// NextTicketID derives the next id in a prefix sequence from the
// lexicographically greatest existing id. An empty or unparsable last id
// restarts the counter at 1.
func NextTicketID(prefix, lastID string) string {
	counter := 1
	if lastID != "" {
		parts := strings.Split(lastID, "-")
		if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			counter = n + 1
		}
	}
	return fmt.Sprintf("%s%03d", prefix, counter)
}

// keyedMutex serializes ticket-id allocation per (category-code, date) key so
// concurrent creations never observe the same "last" counter.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
