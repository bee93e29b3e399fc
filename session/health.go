package session

import "sync"

// Health tracks the sync loop's consecutive transport failures, the way
// cmix/health tracks heartbeat loss: isHealthy flips false after a failed
// round and back to true after the next success, with callbacks notified
// on each flip.
type Health struct {
	mu             sync.RWMutex
	isHealthy      bool
	wasHealthy     bool
	consecutiveErr int
	funcs          map[uint64]func(bool)
	nextID         uint64
}

// NewHealth returns a Health tracker that starts unhealthy until the first
// successful sync round.
func NewHealth() *Health {
	return &Health{funcs: map[uint64]func(bool){}}
}

// IsHealthy reports whether the most recent sync round succeeded.
func (h *Health) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.isHealthy
}

// WasHealthy reports whether the tracker has ever been healthy.
func (h *Health) WasHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.wasHealthy
}

// ConsecutiveFailures returns the current run length of failed sync rounds.
func (h *Health) ConsecutiveFailures() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.consecutiveErr
}

// AddHealthCallback registers f to be run, in its own goroutine, whenever
// health flips. Returns an id for RemoveHealthCallback.
func (h *Health) AddHealthCallback(f func(isHealthy bool)) uint64 {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.funcs[id] = f
	healthy := h.isHealthy
	h.mu.Unlock()

	go f(healthy)
	return id
}

// RemoveHealthCallback deregisters a callback added via AddHealthCallback.
func (h *Health) RemoveHealthCallback(id uint64) {
	h.mu.Lock()
	delete(h.funcs, id)
	h.mu.Unlock()
}

func (h *Health) reportSuccess() {
	h.mu.Lock()
	flipped := !h.isHealthy
	h.isHealthy = true
	h.wasHealthy = true
	h.consecutiveErr = 0
	funcs := h.snapshot()
	h.mu.Unlock()

	if flipped {
		for _, f := range funcs {
			go f(true)
		}
	}
}

func (h *Health) reportFailure() {
	h.mu.Lock()
	flipped := h.isHealthy
	h.isHealthy = false
	h.consecutiveErr++
	funcs := h.snapshot()
	h.mu.Unlock()

	if flipped {
		for _, f := range funcs {
			go f(false)
		}
	}
}

// snapshot must be called with mu held.
func (h *Health) snapshot() []func(bool) {
	out := make([]func(bool), 0, len(h.funcs))
	for _, f := range h.funcs {
		out = append(out, f)
	}
	return out
}
