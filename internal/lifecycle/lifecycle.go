// Package lifecycle implements NHM's lifecycle participant: the ordered startup sequence, the shutdown-request handler, the
// watchdog ping cadence, and teardown.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wemix/nhm/internal/facade"
	"github.com/wemix/nhm/internal/nsm"
	"github.com/wemix/nhm/internal/observer"
	"github.com/wemix/nhm/internal/persistence"
	"github.com/wemix/nhm/internal/prober"
	"github.com/wemix/nhm/internal/restart"
	"github.com/wemix/nhm/internal/servicemgr"
	"github.com/wemix/nhm/internal/tracker"
	"github.com/wemix/nhm/internal/types"
	"github.com/wemix/nhm/pkg/logger"
)

// Options configures a Participant. BusName/ObjName/ShutdownTimeoutMS
// describe the RegisterShutdownClient call of step 4.
type Options struct {
	BusName           string
	ObjName           string
	ShutdownTimeoutMS uint32
	HistoryVersion    uint32
	Config            types.Configuration
}

// Participant owns the NSM peer handles and coordinates the other
// components' startup/shutdown's ownership notes.
type Participant struct {
	opts     Options
	gateway  *persistence.Gateway
	nsmClnt  *nsm.Client
	observer *observer.Observer
	prober   *prober.Prober
	watchdog *Watchdog
	notifier servicemgr.Notifier
	facade   *facade.Facade
	tracker  *tracker.Tracker
	policy   *restart.Policy
	log      *logger.Logger

	sigCh chan os.Signal
	quit  chan struct{}
}

// New builds a Participant. supervisorClient and nsmTransport are the
// out-of-scope concrete IPC implementations; gateway is
// constructed by the caller so its base directory can be configured.
func New(opts Options, gateway *persistence.Gateway, supervisorClient observer.SupervisorClient, nsmTransport nsm.Transport, notifier servicemgr.Notifier, log *logger.Logger) *Participant {
	p := &Participant{
		opts:     opts,
		gateway:  gateway,
		nsmClnt:  nsm.New(nsmTransport, log),
		facade:   facade.New(log),
		notifier: notifier,
		log:      log,
		quit:     make(chan struct{}),
	}
	p.observer = observer.New(supervisorClient, func(name string, status types.AppStatus) {
		p.facade.RegisterAppStatus(context.Background(), name, status)
	}, log)
	return p
}

// Facade returns the service façade, for wiring into the transport layer
// (internal/api) once Start has completed.
func (p *Participant) Facade() *facade.Facade {
	return p.facade
}

// Start runs the ordered startup sequence from Step 4 (NSM
// connect/registration) is fatal on failure; every other step degrades
// gracefully and is logged.
func (p *Participant) Start(ctx context.Context) error {
	// Step 1: persistence is already initialised by the caller (the
	// Gateway was constructed before Start); nothing further to do here.

	// Step 2: configuration is loaded by the caller into p.opts.Config;
	// a missing/malformed key never reaches this far (internal/config
	// applies defaults before Start is called).

	// Step 3: endpoint-check list preparation happens when the prober's
	// EndpointsCheck is constructed, with no connections opened yet
	// (EndpointsCheck dials lazily on first Run).

	// Step 4: connect to NSM, register as a shutdown client. Fatal.
	if err := p.nsmClnt.RegisterShutdownClient(ctx, p.opts.BusName, p.opts.ObjName, types.ShutdownTypeFast, p.opts.ShutdownTimeoutMS); err != nil {
		return err
	}
	p.nsmClnt.SetLifecycleHandler(p.handleLifecycleRequest)

	// Step 5, bus_acquired: read the shutdown flag, push LcInfo[0], load
	// history after it, build the tracker+policy and attach to the façade.
	startState := p.gateway.ReadShutdownFlag()
	_, history := p.gateway.ReadHistory()
	nodeInfo := append(types.NodeInfo{{StartState: startState}}, history...)

	p.policy = restart.New(p.nsmClnt, p.opts.Config.NoRestartApps, p.opts.Config.MaxFailedApps, p.log)
	p.tracker = tracker.New(nodeInfo, p.opts.Config.HistoricLcCount, p.opts.HistoryVersion, p.nsmClnt, p.policy, p.gateway, p.facade.Signal(), p.log)
	p.facade.Attach(p.tracker, p.policy)

	// Step 5, name_acquired: write Started, persist initial history, start
	// the prober timer, connect the observer (non-fatal), notify ready,
	// start the watchdog.
	p.gateway.WriteShutdownFlag(types.NodeShutdownStarted)
	if err := p.gateway.WriteHistory(p.opts.HistoryVersion, p.tracker.NodeInfo(), p.opts.Config.HistoricLcCount+1); err != nil && p.log != nil {
		p.log.Warn("lifecycle: initial history persist failed", "error", err.Error())
	}

	if p.prober != nil {
		p.prober.Start()
	}

	if err := p.observer.Connect(ctx); err != nil && p.log != nil {
		p.log.Warn("lifecycle: unit-state observer connect failed", "error", err.Error())
	}

	if p.notifier != nil {
		if err := p.notifier.Notify(servicemgr.NotifyReady); err != nil && p.log != nil {
			p.log.Warn("lifecycle: ready notification failed", "error", err.Error())
		}
	}

	watchdog, enabled := NewWatchdog(p.notifier, p.log)
	p.watchdog = watchdog
	if enabled {
		p.watchdog.Start()
	}

	// Step 6: SIGTERM initiates orderly shutdown.
	p.sigCh = make(chan os.Signal, 1)
	signal.Notify(p.sigCh, syscall.SIGTERM)
	go p.signalLoop()

	return nil
}

func (p *Participant) signalLoop() {
	select {
	case <-p.sigCh:
		if p.notifier != nil {
			p.notifier.Notify(servicemgr.NotifyStopping)
		}
		p.gateway.WriteShutdownFlag(types.NodeShutdownShutdown)
		p.Teardown()
		close(p.quit)
	case <-p.quit:
	}
}

// Quit returns a channel closed once the SIGTERM-driven shutdown (or an
// explicit Teardown) has completed, for cmd/nhm's main loop to block on.
func (p *Participant) Quit() <-chan struct{} {
	return p.quit
}

// SetProber attaches the prober to be started in Start's "name_acquired"
// phase. Must be called before Start.
func (p *Participant) SetProber(pr *prober.Prober) {
	p.prober = pr
}

// handleLifecycleRequest is the NSM's LifecycleRequest callback: a shutdown-type request writes Shutdown, a run-up-type request
// writes Started. The reply reports whether the write succeeded.
func (p *Participant) handleLifecycleRequest(ctx context.Context, reqType types.LifecycleRequestType, requestID uint32) error {
	var state types.NodeShutdownState
	if reqType == types.LifecycleRequestRunup {
		state = types.NodeShutdownStarted
	} else {
		state = types.NodeShutdownShutdown
	}
	if !p.gateway.WriteShutdownFlag(state) {
		return errWriteFailed
	}
	return nil
}

var errWriteFailed = &lifecycleError{"lifecycle: shutdown flag write failed"}

type lifecycleError struct{ msg string }

func (e *lifecycleError) Error() string { return e.msg }

// Teardown runsthe teardown sequence: quit, disconnect the
// observer, free façade state, release NSM peers, free check state,
// deinitialise persistence. Idempotent by virtue of each step being
// idempotent.
func (p *Participant) Teardown() {
	if p.watchdog != nil {
		p.watchdog.Stop()
	}
	if p.prober != nil {
		p.prober.Stop()
		p.prober.Close()
	}
	if p.observer != nil {
		p.observer.Disconnect()
	}
	// Façade state and NSM peer handles need no explicit release in this
	// implementation — both are plain Go values collected by the GC once
	// the Participant is dropped; persistence likewise holds no open
	// handles between calls.
}

// waitForQuit blocks on Quit with a hard deadline and reports whether
// Quit closed before the deadline.
func waitForQuit(p *Participant, timeout time.Duration) bool {
	select {
	case <-p.Quit():
		return true
	case <-time.After(timeout):
		return false
	}
}
