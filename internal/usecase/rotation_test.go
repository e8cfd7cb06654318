package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

func TestRotatePoolsSwapCount(t *testing.T) {
	principal := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10"}
	secondary := []string{"s1", "s2", "s3", "s4", "s5"}

	res := rotatePools(principal, secondary, domain.PoolPrincipal, nil)

	// ceil(0.3*10) = 3 swapped members
	assert.Equal(t, 3, res.Swapped)
	assert.Len(t, res.Principal, 10)
	assert.Len(t, res.Secondary, 5)
	assert.Equal(t, domain.PoolSecondary, res.Active)

	// Membership is preserved across the swap.
	union := make(map[string]bool)
	for _, id := range append(res.Principal, res.Secondary...) {
		assert.False(t, union[id], "duplicate %s after rotation", id)
		union[id] = true
	}
	assert.Len(t, union, 15)
}

func TestRotatePoolsCappedBySecondary(t *testing.T) {
	principal := []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7", "p8", "p9", "p10"}
	secondary := []string{"s1", "s2"}

	res := rotatePools(principal, secondary, domain.PoolSecondary, nil)
	assert.Equal(t, 2, res.Swapped)
	assert.Equal(t, domain.PoolPrincipal, res.Active)
}

func TestRotatePoolsEmptySecondaryNoop(t *testing.T) {
	principal := []string{"p1", "p2", "p3"}

	res := rotatePools(principal, nil, domain.PoolPrincipal, nil)
	assert.Zero(t, res.Swapped)
	assert.Equal(t, principal, res.Principal)
	assert.Empty(t, res.Secondary)
	assert.Equal(t, domain.PoolPrincipal, res.Active)
}

func TestRotatePoolsSmallPrincipal(t *testing.T) {
	// ceil(0.3*2) = 1
	res := rotatePools([]string{"p1", "p2"}, []string{"s1", "s2", "s3"}, domain.PoolPrincipal, nil)
	assert.Equal(t, 1, res.Swapped)
	assert.Len(t, res.Principal, 2)
	assert.Len(t, res.Secondary, 3)
}

func TestRotatePoolsPrefersUnmovedMembers(t *testing.T) {
	// k = min(ceil(0.3*3), 1) = 1. With p1 marked as moved by the previous
	// cycle, the swap must pick one of the untouched principals.
	for i := 0; i < 50; i++ {
		res := rotatePools([]string{"p1", "p2", "p3"}, []string{"s1"}, domain.PoolSecondary, []string{"p1", "s1"})
		assert.Contains(t, res.Principal, "p1")
	}
}

func TestMovedAccounts(t *testing.T) {
	got := movedAccounts([]string{"p1", "p2", "p3"}, []string{"p2", "x1", "p3"})
	assert.Equal(t, []string{"x1"}, got)
	assert.Empty(t, movedAccounts([]string{"p1"}, []string{"p1"}))
}
