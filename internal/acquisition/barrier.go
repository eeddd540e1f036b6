package acquisition

import "sync"

// Barrier is a cyclic rendezvous point: Wait blocks until `parties`
// goroutines have all called it, then releases all of them together
// and resets for the next round. This is the startup-coherence
// handshake from spec §4.5/§4.2: every reader task arms its async read
// within the same scheduling window.
//
// Unlike a one-shot WaitGroup, this barrier must be reusable — the
// deprecated retune-restart path (spec §9) re-enters CONFIGURING and
// waits on the same barrier again.
type Barrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	parties int
	waiting int
	gen     uint64
}

// NewBarrier returns a Barrier for the given number of parties.
func NewBarrier(parties int) *Barrier {
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks until all parties have called Wait for the current
// generation, then returns for all of them at once.
func (b *Barrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()

	gen := b.gen
	b.waiting++
	if b.waiting == b.parties {
		b.waiting = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	for gen == b.gen {
		b.cond.Wait()
	}
}
