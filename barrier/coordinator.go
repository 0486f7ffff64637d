// Package barrier provides the process-wide rendezvous point that aligns the
// phase transitions of all participants in a test case: an N-party arrival
// barrier plus the "server alive" and "client finished" latches.
package barrier

import "sync"

// latch is a single-set event. Setting it more than once is a no-op; waiters
// observe at most one transition.
type latch struct {
	once sync.Once
	ch   chan struct{}
}

func newLatch() *latch {
	return &latch{ch: make(chan struct{})}
}

func (l *latch) set() {
	l.once.Do(func() { close(l.ch) })
}

func (l *latch) wait() {
	<-l.ch
}

func (l *latch) isSet() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// Coordinator synchronizes the participant threads of one test case. It must
// be Reset before each test case, after all threads of the previous case have
// stopped; stale state never carries over.
//
// A Coordinator is handed to every task at construction time rather than kept
// as package state, so per-test-case reset is an explicit, checkable step.
type Coordinator struct {
	mu       sync.Mutex
	expected int
	arrived  int
	release  chan struct{}

	serverAlive    *latch
	clientFinished *latch
}

// NewCoordinator returns a Coordinator with zero barrier capacity. Reset must
// be called before the first use.
func NewCoordinator() *Coordinator {
	c := &Coordinator{}
	c.resetLocked(0)
	return c
}

// Reset reinitializes the arrival barrier to expect n participants and clears
// both latches. Call exactly once per test case, before any task starts.
func (c *Coordinator) Reset(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(n)
}

func (c *Coordinator) resetLocked(n int) {
	c.expected = n
	c.arrived = 0
	c.release = make(chan struct{})
	c.serverAlive = newLatch()
	c.clientFinished = newLatch()
}

// WaitOnBarrier blocks until the configured number of participants have each
// called it once, then releases all of them together. A caller beyond the
// configured capacity parks permanently; it never passes through.
func (c *Coordinator) WaitOnBarrier() {
	c.mu.Lock()
	c.arrived++
	release := c.release
	if c.arrived == c.expected {
		close(release)
	} else if c.arrived > c.expected {
		// Unexpected extra arrival. The release channel for this run is
		// already closed, so waiting on it would let the caller slip
		// through; park it on a fresh channel that nothing ever closes.
		release = make(chan struct{})
	}
	c.mu.Unlock()
	<-release
}

// SetServerAlive marks the server as observably running. Safe to call more
// than once; only the first call has an effect.
func (c *Coordinator) SetServerAlive() {
	c.latchServerAlive().set()
}

// WaitOnServerAlive blocks until SetServerAlive has been called.
func (c *Coordinator) WaitOnServerAlive() {
	c.latchServerAlive().wait()
}

// SetClientFinished marks traffic generation as complete, telling long-running
// monitors to stop sampling. Idempotent like SetServerAlive.
func (c *Coordinator) SetClientFinished() {
	c.latchClientFinished().set()
}

// WaitOnClientFinished blocks until SetClientFinished has been called.
func (c *Coordinator) WaitOnClientFinished() {
	c.latchClientFinished().wait()
}

// ClientFinished reports whether the client-finished latch is set, without
// blocking. Sampling loops poll this between iterations.
func (c *Coordinator) ClientFinished() bool {
	return c.latchClientFinished().isSet()
}

func (c *Coordinator) latchServerAlive() *latch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverAlive
}

func (c *Coordinator) latchClientFinished() *latch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientFinished
}
