// Package ratelimit bounds how often a connection may send each kind of request.
//
// Each (category, connection) pair gets a fixed window counter. Every request
// increments the counter; it is admitted while the count is at or below the
// category maximum. The first request after the window has elapsed starts a
// new window. The Governor is owned by the coordinator loop and is not safe
// for concurrent use.
package ratelimit

import (
	"time"
)

// Category identifies a rate-limited message family
type Category string

const (
	CategoryQueueJoin      Category = "queue-join"
	CategoryReadySignal    Category = "ready-signal"
	CategoryResultSubmit   Category = "result-submit"
	CategoryRematchRequest Category = "rematch-request"
)

// Categories lists every category in a stable order
var Categories = []Category{
	CategoryQueueJoin,
	CategoryReadySignal,
	CategoryResultSubmit,
	CategoryRematchRequest,
}

// Rule is the window length and the maximum admitted count within it
type Rule struct {
	Window time.Duration
	Max    int
}

// DefaultRules returns the limits used when nothing is configured
func DefaultRules() map[Category]Rule {
	return map[Category]Rule{
		CategoryQueueJoin:      {Window: 10 * time.Second, Max: 5},
		CategoryReadySignal:    {Window: 10 * time.Second, Max: 10},
		CategoryResultSubmit:   {Window: 10 * time.Second, Max: 5},
		CategoryRematchRequest: {Window: 10 * time.Second, Max: 5},
	}
}

// staleWindows is how many window lengths a counter may sit untouched before Purge drops it
const staleWindows = 3

type counter struct {
	start    time.Time
	count    int
	lastSeen time.Time
}

// Governor tracks counters per category and connection
type Governor struct {
	rules    map[Category]Rule
	counters map[Category]map[string]*counter
}

// NewGovernor creates a governor. Categories without a rule are never limited.
func NewGovernor(rules map[Category]Rule) *Governor {
	g := &Governor{
		rules:    make(map[Category]Rule, len(rules)),
		counters: make(map[Category]map[string]*counter, len(rules)),
	}
	for cat, r := range rules {
		g.rules[cat] = r
		g.counters[cat] = make(map[string]*counter)
	}
	return g
}

// Allow records a request and reports whether it is admitted
func (g *Governor) Allow(cat Category, connID string, now time.Time) bool {
	rule, ok := g.rules[cat]
	if !ok || rule.Max <= 0 || rule.Window <= 0 {
		return true
	}

	c, ok := g.counters[cat][connID]
	if !ok || now.Sub(c.start) >= rule.Window {
		c = &counter{start: now}
		g.counters[cat][connID] = c
	}
	c.count++
	c.lastSeen = now
	return c.count <= rule.Max
}

// Forget drops every counter for connID
func (g *Governor) Forget(connID string) {
	for _, m := range g.counters {
		delete(m, connID)
	}
}

// Purge drops counters that were not touched for several window lengths and
// returns how many were removed.
func (g *Governor) Purge(now time.Time) int {
	removed := 0
	for cat, m := range g.counters {
		idle := g.rules[cat].Window * staleWindows
		for id, c := range m {
			if now.Sub(c.lastSeen) > idle {
				delete(m, id)
				removed++
			}
		}
	}
	return removed
}

// Len is the total number of live counters
func (g *Governor) Len() int {
	n := 0
	for _, m := range g.counters {
		n += len(m)
	}
	return n
}
