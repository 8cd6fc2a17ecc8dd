package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/logger"
	"github.com/saiset-co/kodespace/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() types.Logger {
	return logger.NewZapWrapper(zap.NewNop())
}
