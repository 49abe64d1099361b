// Package prober implements NHM's user-land prober: four
// ordered check classes run on a timer, short-circuiting at the first
// failure and logging the outcome without acting on it.
package prober

import (
	"context"
	"sync"
	"time"

	"github.com/wemix/nhm/pkg/logger"
)

// Prober runs its ordered CheckClasses every interval, stopping at the
// first failing class per invocation. An interval of zero
// disables the timer entirely — Start becomes a no-op.
type Prober struct {
	classes  []CheckClass
	interval time.Duration
	timeout  time.Duration
	log      *logger.Logger

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastOK   bool
	lastSeen time.Time
}

// New builds a Prober over classes, run in the given order, polling every
// interval with a per-invocation timeout.
func New(classes []CheckClass, interval, timeout time.Duration, log *logger.Logger) *Prober {
	return &Prober{classes: classes, interval: interval, timeout: timeout, log: log}
}

// Start begins the polling timer. A zero interval is a no-op, matching
// ("no-op if 0"). Calling Start twice without Stop is a no-op.
func (p *Prober) Start() {
	if p.interval <= 0 {
		return
	}

	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx)
}

func (p *Prober) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check class in order, stopping at the first failure,
// and logs the outcome. It never blocks beyond the configured per-run
// timeout and never triggers a restart — is explicit that the
// prober only logs.
func (p *Prober) RunOnce(ctx context.Context) bool {
	runCtx := ctx
	var cancel context.CancelFunc
	if p.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	ok := true
	for _, class := range p.classes {
		if err := class.Run(runCtx); err != nil {
			ok = false
			if p.log != nil {
				p.log.Warn("prober: check class failed", "class", class.Name(), "error", err.Error())
			}
			break
		}
	}
	if ok && p.log != nil {
		p.log.Debug("prober: all check classes passed")
	}

	p.mu.Lock()
	p.lastOK = ok
	p.lastSeen = time.Now()
	p.mu.Unlock()

	return ok
}

// LastResult reports the outcome and timestamp of the most recent RunOnce.
func (p *Prober) LastResult() (ok bool, at time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOK, p.lastSeen
}

// Stop halts the polling timer and waits for the background goroutine to
// exit. Idempotent.
func (p *Prober) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// Close releases any resources held by the check classes (e.g. cached
// endpoint connections).
func (p *Prober) Close() error {
	for _, class := range p.classes {
		if closer, ok := class.(interface{ Close() error }); ok {
			closer.Close()
		}
	}
	return nil
}
