// Package observer implements NHM's unit-state observer:
// it watches the external unit supervisor's unit inventory and translates
// ActiveState transitions into AppStatus callbacks via a fixed table.
package observer

import (
	"context"
	"strings"
	"sync"

	"github.com/wemix/nhm/internal/types"
	"github.com/wemix/nhm/pkg/logger"
)

// StatusFunc receives one (name, status) callback per qualifying
// transition's transition table.
type StatusFunc func(name string, status types.AppStatus)

type trackedUnit struct {
	state  types.UnitActiveState
	handle any
}

// Observer tracks ".service"-suffixed units and fires callbacks on the
// transitions the table defines. All exported methods are safe to call
// concurrently with the background watch goroutine started by Connect.
type Observer struct {
	client   SupervisorClient
	onStatus StatusFunc
	log      *logger.Logger

	mu    sync.Mutex
	units map[string]*trackedUnit

	cancel context.CancelFunc
	wg     sync.WaitGroup

	disconnectOnce sync.Once
}

// New builds an Observer against client, invoking onStatus for each
// callback the transition table fires.
func New(client SupervisorClient, onStatus StatusFunc, log *logger.Logger) *Observer {
	return &Observer{
		client:   client,
		onStatus: onStatus,
		log:      log,
		units:    make(map[string]*trackedUnit),
	}
}

// Connect subscribes to the supervisor, enumerates its current unit
// inventory, and starts watching for unit add/remove events. Failure here
// is non-fatal at the call site.
func (o *Observer) Connect(ctx context.Context) error {
	if err := o.client.Subscribe(ctx); err != nil {
		return err
	}

	names, err := o.client.ListUnits(ctx)
	if err != nil {
		o.client.Unsubscribe()
		return err
	}
	for _, name := range names {
		o.addUnit(ctx, name)
	}

	changes, err := o.client.WatchUnitChanges(ctx)
	if err != nil {
		o.client.Unsubscribe()
		return err
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.wg.Add(1)
	go o.watchLoop(watchCtx, changes)

	return nil
}

func (o *Observer) watchLoop(ctx context.Context, changes <-chan UnitChangeEvent) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			if ev.Removed {
				o.removeUnit(ev.Unit)
			} else {
				o.addUnit(ctx, ev.Unit)
			}
		}
	}
}

// addUnit is the "unit add" step of: only ".service" units
// not already tracked are added; initial ActiveState fetch failure yields
// Unknown rather than aborting the add.
func (o *Observer) addUnit(ctx context.Context, name string) {
	if !strings.HasSuffix(name, ".service") {
		return
	}

	o.mu.Lock()
	if _, exists := o.units[name]; exists {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()

	state, err := o.client.GetActiveState(ctx, name)
	if err != nil {
		state = types.UnitActiveStateUnknown
		if o.log != nil {
			o.log.Warn("observer: initial active-state fetch failed", "unit", name, "error", err.Error())
		}
	}

	handle, states, err := o.client.WatchPropertiesChanged(ctx, name)
	if err != nil {
		if o.log != nil {
			o.log.Warn("observer: property subscription failed", "unit", name, "error", err.Error())
		}
		return
	}

	o.mu.Lock()
	if _, exists := o.units[name]; exists {
		o.mu.Unlock()
		o.client.Unwatch(handle)
		return
	}
	o.units[name] = &trackedUnit{state: state, handle: handle}
	o.mu.Unlock()

	o.wg.Add(1)
	go o.watchUnit(name, states)
}

func (o *Observer) watchUnit(name string, states <-chan types.UnitActiveState) {
	defer o.wg.Done()
	for newState := range states {
		o.applyTransition(name, newState)
	}
}

// applyTransition records the new state unconditionally and fires the
// callback only when the transition table defines one for this pair.
func (o *Observer) applyTransition(name string, newState types.UnitActiveState) {
	o.mu.Lock()
	unit, ok := o.units[name]
	if !ok {
		o.mu.Unlock()
		return
	}
	oldState := unit.state
	unit.state = newState
	o.mu.Unlock()

	status, fire := lookupTransition(oldState, newState)
	if fire && o.onStatus != nil {
		o.onStatus(name, status)
	}
}

// removeUnit is the "unit removed" step: drop from tracking and unsubscribe.
func (o *Observer) removeUnit(name string) {
	o.mu.Lock()
	unit, ok := o.units[name]
	if ok {
		delete(o.units, name)
	}
	o.mu.Unlock()
	if ok {
		o.client.Unwatch(unit.handle)
	}
}

// Disconnect unsubscribes every per-unit stream, the enumeration stream,
// and the master subscription, then releases the connection. It is
// idempotent and synchronous: it does not return until every background
// watcher has exited.
func (o *Observer) Disconnect() {
	o.disconnectOnce.Do(func() {
		if o.cancel != nil {
			o.cancel()
		}

		o.mu.Lock()
		units := o.units
		o.units = make(map[string]*trackedUnit)
		o.mu.Unlock()

		for _, unit := range units {
			o.client.Unwatch(unit.handle)
		}

		o.client.Unsubscribe()
		o.wg.Wait()
	})
}

// ActiveState returns the last-seen state for a tracked unit, for tests
// and diagnostics.
func (o *Observer) ActiveState(name string) (types.UnitActiveState, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	unit, ok := o.units[name]
	if !ok {
		return types.UnitActiveStateUnknown, false
	}
	return unit.state, true
}
