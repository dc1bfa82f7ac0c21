package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func TestAllowWithinWindow(t *testing.T) {
	g := NewGovernor(map[Category]Rule{
		CategoryQueueJoin: {Window: 10 * time.Second, Max: 3},
	})

	for i := 0; i < 3; i++ {
		assert.True(t, g.Allow(CategoryQueueJoin, "a", t0.Add(time.Duration(i)*time.Second)), "request %d", i+1)
	}
	assert.False(t, g.Allow(CategoryQueueJoin, "a", t0.Add(4*time.Second)))
	assert.False(t, g.Allow(CategoryQueueJoin, "a", t0.Add(9*time.Second)))

	// another connection has its own counter
	assert.True(t, g.Allow(CategoryQueueJoin, "b", t0.Add(5*time.Second)))
}

func TestWindowResets(t *testing.T) {
	g := NewGovernor(map[Category]Rule{
		CategoryResultSubmit: {Window: 10 * time.Second, Max: 1},
	})

	assert.True(t, g.Allow(CategoryResultSubmit, "a", t0))
	assert.False(t, g.Allow(CategoryResultSubmit, "a", t0.Add(time.Second)))
	assert.True(t, g.Allow(CategoryResultSubmit, "a", t0.Add(10*time.Second)))
	assert.False(t, g.Allow(CategoryResultSubmit, "a", t0.Add(11*time.Second)))
}

func TestCategoriesAreIndependent(t *testing.T) {
	g := NewGovernor(DefaultRules())

	for i := 0; i < 5; i++ {
		assert.True(t, g.Allow(CategoryQueueJoin, "a", t0))
	}
	assert.False(t, g.Allow(CategoryQueueJoin, "a", t0))
	assert.True(t, g.Allow(CategoryReadySignal, "a", t0))
}

func TestUnconfiguredCategoryIsUnlimited(t *testing.T) {
	g := NewGovernor(map[Category]Rule{})
	for i := 0; i < 100; i++ {
		assert.True(t, g.Allow(CategoryRematchRequest, "a", t0))
	}
	assert.Equal(t, 0, g.Len())
}

func TestPurgeDropsStaleCounters(t *testing.T) {
	g := NewGovernor(map[Category]Rule{
		CategoryQueueJoin:   {Window: 10 * time.Second, Max: 5},
		CategoryReadySignal: {Window: time.Minute, Max: 5},
	})

	g.Allow(CategoryQueueJoin, "old", t0)
	g.Allow(CategoryReadySignal, "old", t0)
	g.Allow(CategoryQueueJoin, "fresh", t0.Add(25*time.Second))
	assert.Equal(t, 3, g.Len())

	removed := g.Purge(t0.Add(31 * time.Second))
	assert.Equal(t, 1, removed, "only the 10s-window counter idle for over 30s goes")
	assert.Equal(t, 2, g.Len())

	g.Forget("old")
	assert.Equal(t, 1, g.Len())
}
