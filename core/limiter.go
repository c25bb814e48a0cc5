package core

import (
	"fmt"
	"sync"
)

// GenerationLimiter enforces a maximum number of generations submitted on
// behalf of one lifecycle context.
type GenerationLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewGenerationLimiter creates a new limiter with a max number of generations.
// If max == 0, unlimited generations are allowed.
func NewGenerationLimiter(max int) *GenerationLimiter {
	return &GenerationLimiter{max: max}
}

// Reserve increases the counter and returns ErrGenerationLimit if the limit is
// exceeded. A rejected reservation is not counted.
func (gl *GenerationLimiter) Reserve() error {
	gl.mu.Lock()
	defer gl.mu.Unlock()

	if gl.max > 0 && gl.count >= gl.max {
		return fmt.Errorf("%w: max %d", ErrGenerationLimit, gl.max)
	}
	gl.count++

	return nil
}

// Count returns the number of reserved generations.
func (gl *GenerationLimiter) Count() int {
	gl.mu.Lock()
	defer gl.mu.Unlock()

	return gl.count
}

// Remaining returns how many generations are left before hitting the limit.
func (gl *GenerationLimiter) Remaining() int {
	gl.mu.Lock()
	defer gl.mu.Unlock()

	if gl.max == 0 {
		return -1 // unlimited
	}

	return gl.max - gl.count
}
