package worker

import "sync"

// cycle is the state one consumption cycle shares across every worker that
// takes part in it.
type cycle struct {
	stop <-chan struct{}

	mu      sync.Mutex
	claimed map[string]struct{}
}

// newCycle starts a cycle that ends early once stop is closed. A nil stop
// never fires.
func newCycle(stop <-chan struct{}) *cycle {
	return &cycle{stop: stop, claimed: make(map[string]struct{})}
}

// claim records that postID is being handled in this cycle. It returns false
// if some worker already took it, which means the task has come round again.
func (c *cycle) claim(postID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.claimed[postID]; ok {
		return false
	}
	c.claimed[postID] = struct{}{}
	return true
}

func (c *cycle) stopped() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}
