package entity

import (
	"context"
	"sync"
	"time"

	"hubadapters/internal/clock"

	"go.uber.org/zap"
)

// Poller calls Update on one entity at a fixed interval. Polls never
// overlap; a failed poll is logged and the next one is scheduled as usual.
type Poller struct {
	entity   Entity
	interval time.Duration
	clock    clock.Clock
	logger   *zap.Logger
	observer Observer

	pollMu sync.Mutex // serializes Update calls

	mu      sync.Mutex
	timer   clock.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

// NewPoller creates a poller for e
func NewPoller(e Entity, interval time.Duration, clk clock.Clock, logger *zap.Logger) *Poller {
	return &Poller{
		entity:   e,
		interval: interval,
		clock:    clk,
		logger:   logger.With(zap.String("entity_id", e.EntityID())),
	}
}

// Start schedules the first poll one interval from now
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.timer != nil || p.stopped {
		return
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.timer = p.clock.AfterFunc(p.interval, p.tick)
	p.logger.Debug("Polling started", zap.Duration("interval", p.interval))
}

// PollNow runs one update immediately, waiting for a running poll to finish first
func (p *Poller) PollNow(ctx context.Context) error {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	err := p.entity.Update(ctx)
	if err != nil {
		p.logger.Warn("Entity update failed", zap.Error(err))
	}
	if p.observer != nil {
		p.observer.ObservePoll(p.entity.Snapshot(), err)
	}
	return err
}

// Stop cancels the schedule and any poll in flight
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopped = true
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Poller) tick() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	ctx := p.ctx
	p.mu.Unlock()

	_ = p.PollNow(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		p.timer.Reset(p.interval)
	}
}
