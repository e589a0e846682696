package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupePreserveOrder(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, DedupePreserveOrder([]string{"a", "b", "a", "c", "b"}))
	assert.Equal(t, []string{}, DedupePreserveOrder([]string{}))
	assert.Equal(t, []string{"x"}, DedupePreserveOrder([]string{"x", "x", "x"}))
}

func TestIntersectAllowed(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, IntersectAllowed([]string{"a", "zzz", "b", "qqq"}, []string{"a", "b", "c"}))
	assert.Equal(t, []string{}, IntersectAllowed([]string{"zzz"}, []string{"a", "b"}))
}

// The enum_list dedupe law, spec.md §4.1/§8: stored value equals
// dedupe_preserving_order(xs ∩ allowed_set). Order of operations matters:
// intersect first preserves xs's original ordering for the survivors.
func TestEnumListDedupeLaw_CombinedOrderMatters(t *testing.T) {
	xs := []string{"b", "zzz", "a", "b", "a"}
	allowed := []string{"a", "b", "c"}
	got := DedupePreserveOrder(IntersectAllowed(xs, allowed))
	assert.Equal(t, []string{"b", "a"}, got)
}

func TestEnumListDedupeLaw_Idempotent(t *testing.T) {
	xs := []string{"a", "b", "c"}
	allowed := []string{"a", "b", "c"}
	once := DedupePreserveOrder(IntersectAllowed(xs, allowed))
	twice := DedupePreserveOrder(IntersectAllowed(once, allowed))
	assert.Equal(t, once, twice)
}
