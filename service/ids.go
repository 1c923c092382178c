package service

import (
	"fmt"
	"sync/atomic"

	"github.com/layer-3/sentinel/core"
	"github.com/lightningnetwork/lnd/clock"
)

// idGenerator mints request ids from wall-clock time and a counter shared by
// all queues.
type idGenerator struct {
	clock   clock.Clock
	counter atomic.Uint64
}

func newIDGenerator(c clock.Clock) *idGenerator {
	return &idGenerator{clock: c}
}

func (g *idGenerator) next() core.RequestID {
	n := g.counter.Add(1)
	return core.RequestID(fmt.Sprintf("%d.%d", g.clock.Now().UnixMilli(), n))
}
