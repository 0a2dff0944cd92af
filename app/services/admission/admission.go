// Package admission enforces the global ceiling on simultaneously running
// tasks. The running count is only ever changed through Admit and Release.
package admission

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

const DefaultCeiling = 3

// Decision is the outcome of Admit. QueuePosition is advisory and is only
// set when Run is false.
type Decision struct {
	Run           bool
	QueuePosition int
}

type Controller struct {
	mu      sync.Mutex
	ceiling int
	running int
}

func New(ceiling int) *Controller {
	if ceiling < 1 {
		ceiling = DefaultCeiling
	}
	return &Controller{ceiling: ceiling}
}

// Admit takes a slot if one is free. Otherwise the task has to wait behind
// queueLen already queued tasks.
func (c *Controller) Admit(queueLen int) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running < c.ceiling {
		c.running++
		return Decision{Run: true}
	}
	return Decision{QueuePosition: queueLen + 1}
}

// Release gives back one slot. Releasing with no slot held is logged and
// ignored so the count can never go negative.
func (c *Controller) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running == 0 {
		log.Warn("admission release without a held slot")
		return
	}
	c.running--
}

func (c *Controller) Running() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) Ceiling() int {
	return c.ceiling
}

func (c *Controller) HasCapacity() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running < c.ceiling
}
