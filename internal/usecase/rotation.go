package usecase

import (
	"math"
	"math/rand"
	"sort"

	"github.com/fairyhunter13/commentflow/internal/adapter/observability"
	"github.com/fairyhunter13/commentflow/internal/domain"
)

// rotationResult is the new pool layout after one swap.
type rotationResult struct {
	Principal []string
	Secondary []string
	Active    domain.ActivePool
	Swapped   int
}

// rotatePools moves k = min(ceil(0.3*|principal|), |secondary|) random
// members between the pools and flips which pool dispatches next. Members
// named in avoid only move when nothing else can, so consecutive cycles
// rotate different accounts. With an empty secondary pool rotation is a
// no-op apart from the flip guard.
func rotatePools(principal, secondary []string, active domain.ActivePool, avoid []string) rotationResult {
	k := int(math.Ceil(0.3 * float64(len(principal))))
	if k > len(secondary) {
		k = len(secondary)
	}
	if k <= 0 || len(principal) == 0 {
		return rotationResult{Principal: principal, Secondary: secondary, Active: active}
	}

	p := append([]string(nil), principal...)
	s := append([]string(nil), secondary...)
	rand.Shuffle(len(p), func(i, j int) { p[i], p[j] = p[j], p[i] })
	rand.Shuffle(len(s), func(i, j int) { s[i], s[j] = s[j], s[i] })
	if len(avoid) > 0 {
		set := make(map[string]bool, len(avoid))
		for _, id := range avoid {
			set[id] = true
		}
		sort.SliceStable(p, func(i, j int) bool { return !set[p[i]] && set[p[j]] })
		sort.SliceStable(s, func(i, j int) bool { return !set[s[i]] && set[s[j]] })
	}

	// Swap the first k of each pool.
	for i := 0; i < k; i++ {
		p[i], s[i] = s[i], p[i]
	}

	next := domain.PoolPrincipal
	if active == domain.PoolPrincipal {
		next = domain.PoolSecondary
	}
	observability.RotationsTotal.WithLabelValues(string(next)).Inc()
	return rotationResult{Principal: p, Secondary: s, Active: next, Swapped: k}
}

// movedAccounts lists members of current that are not in configured, i.e.
// the accounts the previous rotation moved into this pool. They form the
// avoid set for the next swap.
func movedAccounts(configured, current []string) []string {
	base := make(map[string]bool, len(configured))
	for _, id := range configured {
		base[id] = true
	}
	var out []string
	for _, id := range current {
		if !base[id] {
			out = append(out, id)
		}
	}
	return out
}
