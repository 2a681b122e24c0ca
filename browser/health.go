package browser

import (
	"math"
	"sync"
	"time"
)

// RecycleLimits decide when a shared session is retired. A zero field
// disables that trigger.
type RecycleLimits struct {
	ErrorScore float64       // failure +1.0, success -0.5 (min 0)
	Uses       int           // attempts served
	Age        time.Duration // since launch
}

func (l RecycleLimits) enabled() bool {
	return l.ErrorScore > 0 || l.Uses > 0 || l.Age > 0
}

// health scores a session from the outcomes of the attempts it served.
type health struct {
	mu       sync.Mutex
	errScore float64
	useCount int
	created  time.Time
}

func (h *health) record(ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.useCount++
	if ok {
		h.errScore = math.Max(0, h.errScore-0.5)
	} else {
		h.errScore += 1.0
	}
}

func (h *health) shouldRetire(l RecycleLimits) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l.ErrorScore > 0 && h.errScore >= l.ErrorScore {
		return true
	}
	if l.Uses > 0 && h.useCount >= l.Uses {
		return true
	}
	if l.Age > 0 && time.Since(h.created) >= l.Age {
		return true
	}
	return false
}
