// Package testutil holds deterministic stand-ins and fixtures shared by the
// package tests.
package testutil

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// StubClock is a dsync.Clock that only moves when told to.
type StubClock struct {
	mu  sync.RWMutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock starts at 2025-03-01 09:00 UTC, the date fixtures use.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *StubClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// StubIDGenerator is a dsync.IDGenerator handing out id-1, id-2 and so on,
// so blob keys in tests are predictable.
type StubIDGenerator struct {
	next atomic.Int64
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	return "id-" + strconv.FormatInt(g.next.Add(1), 10)
}
