package store

import "sync"

// gate is a reader/writer lock that also tracks sideloads. A sideload is a
// long shared hold: writers wait for it to end, and readers keep getting in
// even while a writer is queued behind it. Outside a sideload, queued writers
// hold back new readers so they are not starved.
type gate struct {
	mu   sync.Mutex
	cond *sync.Cond

	readers        int
	writer         bool
	writersWaiting int
	sideloads      int
}

func newGate() *gate {
	g := &gate{}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *gate) sharedBlocked() bool {
	return g.writer || (g.writersWaiting > 0 && g.sideloads == 0)
}

func (g *gate) rLock() {
	g.mu.Lock()
	for g.sharedBlocked() {
		g.cond.Wait()
	}
	g.readers++
	g.mu.Unlock()
}

func (g *gate) rUnlock() {
	g.mu.Lock()
	g.readers--
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *gate) lock() {
	g.mu.Lock()
	g.writersWaiting++
	for g.writer || g.readers > 0 || g.sideloads > 0 {
		g.cond.Wait()
	}
	g.writersWaiting--
	g.writer = true
	g.mu.Unlock()
}

func (g *gate) unlock() {
	g.mu.Lock()
	g.writer = false
	g.mu.Unlock()
	g.cond.Broadcast()
}

func (g *gate) beginSideload() {
	g.mu.Lock()
	for g.sharedBlocked() {
		g.cond.Wait()
	}
	g.sideloads++
	g.mu.Unlock()
}

func (g *gate) endSideload() {
	g.mu.Lock()
	g.sideloads--
	g.mu.Unlock()
	g.cond.Broadcast()
}
