package usecase

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

// usageTracker counts in-process dispatches per account so round_robin
// stays fair across batches even before last_used lands in the store.
// Compaction keeps the map bounded: past 1000 entries only the top 50
// survive, with halved counts so old favourites decay.
type usageTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func newUsageTracker() *usageTracker {
	return &usageTracker{counts: make(map[string]int)}
}

func (t *usageTracker) record(accountID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[accountID]++
	if len(t.counts) > 1000 {
		t.compact()
	}
}

func (t *usageTracker) count(accountID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[accountID]
}

// compact keeps the 50 busiest accounts at half weight. Caller holds mu.
func (t *usageTracker) compact() {
	type entry struct {
		id string
		n  int
	}
	all := make([]entry, 0, len(t.counts))
	for id, n := range t.counts {
		all = append(all, entry{id, n})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].n > all[j].n })
	if len(all) > 50 {
		all = all[:50]
	}
	t.counts = make(map[string]int, len(all))
	for _, e := range all {
		t.counts[e.id] = e.n / 2
	}
}

// Selector picks which accounts dispatch in a batch.
type Selector struct {
	Accounts domain.AccountRepository
	Profiles domain.ProfileRepository

	usage *usageTracker
}

// NewSelector constructs a Selector.
func NewSelector(a domain.AccountRepository, p domain.ProfileRepository) *Selector {
	return &Selector{Accounts: a, Profiles: p, usage: newUsageTracker()}
}

// Pick resolves the schedule's eligible pool to concrete dispatchable
// accounts, ordered by the selection mode. Inactive accounts and accounts
// whose profile quota is spent are filtered out; an empty result is not an
// error, the batch just posts nothing.
func (sel *Selector) Pick(ctx domain.Context, s domain.Schedule, want int) ([]domain.Account, error) {
	ids := s.EligibleAccounts()
	if len(ids) == 0 {
		return nil, nil
	}
	accounts, err := sel.Accounts.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("op=selector.pick schedule=%s: %w", s.ID, err)
	}

	profiles := make(map[string]domain.APIProfile)
	eligible := accounts[:0]
	for _, a := range accounts {
		if a.Status != domain.AccountActive {
			continue
		}
		if a.ProfileID != "" {
			p, ok := profiles[a.ProfileID]
			if !ok {
				p, err = sel.Profiles.Get(ctx, a.ProfileID)
				if err != nil {
					continue
				}
				profiles[a.ProfileID] = p
			}
			// Soft gate: a spent or exceeded profile sits out until reset.
			if p.Status == domain.ProfileExceeded || p.QuotaExhausted() {
				continue
			}
		}
		eligible = append(eligible, a)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	switch s.AccountSelection {
	case domain.SelectionRandom:
		rand.Shuffle(len(eligible), func(i, j int) { eligible[i], eligible[j] = eligible[j], eligible[i] })
	case domain.SelectionRoundRobin:
		sel.orderRoundRobin(eligible, s.LastUsedAccountID)
	default:
		// specific keeps the configured order
	}

	if want > 0 && want < len(eligible) {
		eligible = eligible[:want]
	}
	return eligible, nil
}

// Record notes an in-process dispatch for round_robin fairness.
func (sel *Selector) Record(accountID string) { sel.usage.record(accountID) }

// selectionWeightCeiling bounds how hard recent use biases a draw away
// from an account: weight = max(1, ceiling - recentUseCount).
const selectionWeightCeiling = 20

// Choose picks one account for a single dispatch slot. The schedule's
// previous account and the account that last posted on the target video
// are excluded while the pool allows it; the rest draw by weighted random
// so recently busy accounts come up less. When the exclusions empty the
// pool they relax one at a time, video marker first, with a warning. A
// single candidate is always returned.
func (sel *Selector) Choose(candidates []domain.Account, lastUsedID, lastForVideo string) (domain.Account, bool) {
	if len(candidates) == 0 {
		return domain.Account{}, false
	}
	pool := candidates
	if len(pool) > 1 {
		pool = excludeAccount(pool, lastUsedID)
	}
	strict := excludeAccount(pool, lastForVideo)
	switch {
	case len(strict) > 0:
		pool = strict
	case len(pool) > 0:
		slog.Warn("relaxing per-video account exclusion",
			slog.String("account_id", lastForVideo))
	default:
		slog.Warn("relaxing previous-account exclusion",
			slog.String("account_id", lastUsedID))
		pool = candidates
	}
	return sel.weightedPick(pool), true
}

func excludeAccount(pool []domain.Account, id string) []domain.Account {
	if id == "" {
		return pool
	}
	out := make([]domain.Account, 0, len(pool))
	for _, a := range pool {
		if a.ID != id {
			out = append(out, a)
		}
	}
	return out
}

func (sel *Selector) weightedPick(pool []domain.Account) domain.Account {
	if len(pool) == 1 {
		return pool[0]
	}
	weights := make([]int, len(pool))
	total := 0
	for i, a := range pool {
		w := selectionWeightCeiling - sel.usage.count(a.ID)
		if w < 1 {
			w = 1
		}
		weights[i] = w
		total += w
	}
	r := rand.Intn(total)
	for i, w := range weights {
		if r < w {
			return pool[i]
		}
		r -= w
	}
	return pool[len(pool)-1]
}

// orderRoundRobin sorts least-dispatched first, using stored last_used and
// then the global last-used account as tie breakers.
func (sel *Selector) orderRoundRobin(accounts []domain.Account, lastUsedID string) {
	sort.SliceStable(accounts, func(i, j int) bool {
		ci, cj := sel.usage.count(accounts[i].ID), sel.usage.count(accounts[j].ID)
		if ci != cj {
			return ci < cj
		}
		ti, tj := lastUsedAt(accounts[i]), lastUsedAt(accounts[j])
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		// Whoever posted most recently goes last.
		return accounts[j].ID == lastUsedID
	})
}

func lastUsedAt(a domain.Account) time.Time {
	if a.LastUsed == nil {
		return time.Time{}
	}
	return *a.LastUsed
}
