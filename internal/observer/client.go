package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/wemix/nhm/internal/types"
)

// SupervisorClient is the out-of-scope "concrete IPC/bus implementation"
// the observer is built against. It models the shape of a
// systemd-style unit supervisor bus connection: enumerate units, subscribe
// to the global unit-added/removed stream, and fetch/watch a single unit's
// ActiveState. Production code gets an HTTP/JSON long-poll adapter;
// tests get an in-memory fake.
type SupervisorClient interface {
	// Subscribe opens the master subscription channel. Must be called
	// before ListUnits/WatchUnitChanges are meaningful.
	Subscribe(ctx context.Context) error
	// Unsubscribe closes the master subscription channel. Idempotent.
	Unsubscribe()

	// ListUnits returns the current unit inventory (name only; filtering
	// to ".service" is the observer's job, not the client's).
	ListUnits(ctx context.Context) ([]string, error)
	// WatchUnitChanges returns a channel of unit-added/unit-removed
	// events. Closed when the client disconnects.
	WatchUnitChanges(ctx context.Context) (<-chan UnitChangeEvent, error)

	// GetActiveState fetches a unit's current ActiveState.
	GetActiveState(ctx context.Context, unit string) (types.UnitActiveState, error)
	// WatchPropertiesChanged subscribes to a single unit's property
	// changes, returning a handle to pass to Unwatch and a channel of
	// ActiveState values. The channel is closed on Unwatch.
	WatchPropertiesChanged(ctx context.Context, unit string) (handle any, states <-chan types.UnitActiveState, err error)
	// Unwatch releases a per-unit subscription obtained from
	// WatchPropertiesChanged. Idempotent.
	Unwatch(handle any)
}

// UnitChangeEvent reports a unit being added to or removed from the
// supervisor's inventory.
type UnitChangeEvent struct {
	Unit    string
	Removed bool
}

// FakeSupervisorClient is an in-memory SupervisorClient for tests: unit
// state transitions are driven explicitly via SetActiveState/AddUnit/
// RemoveUnit rather than an external process.
type FakeSupervisorClient struct {
	mu          sync.Mutex
	subscribed  bool
	units       map[string]types.UnitActiveState
	changes     chan UnitChangeEvent
	watchers    map[string]chan types.UnitActiveState
	nextHandle  int
	handleUnits map[int]string
}

// NewFakeSupervisorClient constructs an empty fake with the given initial
// unit inventory (all starting in UnitActiveStateUnknown).
func NewFakeSupervisorClient(initialUnits ...string) *FakeSupervisorClient {
	units := make(map[string]types.UnitActiveState, len(initialUnits))
	for _, u := range initialUnits {
		units[u] = types.UnitActiveStateUnknown
	}
	return &FakeSupervisorClient{
		units:       units,
		changes:     make(chan UnitChangeEvent, 64),
		watchers:    make(map[string]chan types.UnitActiveState),
		handleUnits: make(map[int]string),
	}
}

func (f *FakeSupervisorClient) Subscribe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = true
	return nil
}

func (f *FakeSupervisorClient) Unsubscribe() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = false
}

func (f *FakeSupervisorClient) ListUnits(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.units))
	for name := range f.units {
		names = append(names, name)
	}
	return names, nil
}

func (f *FakeSupervisorClient) WatchUnitChanges(ctx context.Context) (<-chan UnitChangeEvent, error) {
	return f.changes, nil
}

func (f *FakeSupervisorClient) GetActiveState(ctx context.Context, unit string) (types.UnitActiveState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.units[unit]
	if !ok {
		return types.UnitActiveStateUnknown, fmt.Errorf("observer: unknown unit %q", unit)
	}
	return state, nil
}

func (f *FakeSupervisorClient) WatchPropertiesChanged(ctx context.Context, unit string) (any, <-chan types.UnitActiveState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan types.UnitActiveState, 16)
	f.nextHandle++
	handle := f.nextHandle
	f.watchers[unit] = ch
	f.handleUnits[handle] = unit
	return handle, ch, nil
}

func (f *FakeSupervisorClient) Unwatch(handle any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := handle.(int)
	if !ok {
		return
	}
	unit, ok := f.handleUnits[h]
	if !ok {
		return
	}
	if ch, ok := f.watchers[unit]; ok {
		close(ch)
		delete(f.watchers, unit)
	}
	delete(f.handleUnits, h)
}

// AddUnit introduces a new unit to the fake inventory and announces it on
// the change stream.
func (f *FakeSupervisorClient) AddUnit(name string) {
	f.mu.Lock()
	f.units[name] = types.UnitActiveStateUnknown
	f.mu.Unlock()
	f.changes <- UnitChangeEvent{Unit: name}
}

// RemoveUnit drops a unit from the fake inventory and announces its
// removal on the change stream.
func (f *FakeSupervisorClient) RemoveUnit(name string) {
	f.mu.Lock()
	delete(f.units, name)
	f.mu.Unlock()
	f.changes <- UnitChangeEvent{Unit: name, Removed: true}
}

// SetActiveState updates a unit's state and, if a watcher is attached,
// pushes the new value onto its channel.
func (f *FakeSupervisorClient) SetActiveState(name string, state types.UnitActiveState) {
	f.mu.Lock()
	f.units[name] = state
	ch, watched := f.watchers[name]
	f.mu.Unlock()
	if watched {
		ch <- state
	}
}

// httpSupervisorClient is a thin HTTP/JSON long-poll adapter implementing
// SupervisorClient against a unit-supervisor HTTP shim, for deployments
// without a native bus binding available to pure Go.
type httpSupervisorClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPSupervisorClient builds a production SupervisorClient that talks
// to a unit-supervisor HTTP shim at baseURL.
func NewHTTPSupervisorClient(baseURL string, timeout time.Duration) SupervisorClient {
	return &httpSupervisorClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *httpSupervisorClient) Subscribe(ctx context.Context) error {
	return c.post(ctx, "/subscribe", nil, nil)
}

func (c *httpSupervisorClient) Unsubscribe() {
	_ = c.post(context.Background(), "/unsubscribe", nil, nil)
}

func (c *httpSupervisorClient) ListUnits(ctx context.Context) ([]string, error) {
	var out struct {
		Units []string `json:"units"`
	}
	if err := c.get(ctx, "/units", &out); err != nil {
		return nil, err
	}
	return out.Units, nil
}

func (c *httpSupervisorClient) WatchUnitChanges(ctx context.Context) (<-chan UnitChangeEvent, error) {
	ch := make(chan UnitChangeEvent)
	go c.pollUnitChanges(ctx, ch)
	return ch, nil
}

func (c *httpSupervisorClient) pollUnitChanges(ctx context.Context, out chan<- UnitChangeEvent) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		var events []UnitChangeEvent
		if err := c.get(ctx, "/units/changes", &events); err != nil {
			return
		}
		for _, ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *httpSupervisorClient) GetActiveState(ctx context.Context, unit string) (types.UnitActiveState, error) {
	var out struct {
		ActiveState string `json:"active_state"`
	}
	if err := c.get(ctx, "/units/"+unit+"/active-state", &out); err != nil {
		return types.UnitActiveStateUnknown, err
	}
	return types.ParseUnitActiveState(out.ActiveState), nil
}

func (c *httpSupervisorClient) WatchPropertiesChanged(ctx context.Context, unit string) (any, <-chan types.UnitActiveState, error) {
	ch := make(chan types.UnitActiveState)
	watchCtx, cancel := context.WithCancel(ctx)
	go c.pollProperties(watchCtx, unit, ch)
	return cancel, ch, nil
}

func (c *httpSupervisorClient) pollProperties(ctx context.Context, unit string, out chan<- types.UnitActiveState) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		state, err := c.GetActiveState(ctx, unit)
		if err != nil {
			return
		}
		select {
		case out <- state:
		case <-ctx.Done():
			return
		}
	}
}

func (c *httpSupervisorClient) Unwatch(handle any) {
	if cancel, ok := handle.(context.CancelFunc); ok {
		cancel()
	}
}

func (c *httpSupervisorClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("observer: unexpected status %d from %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *httpSupervisorClient) post(ctx context.Context, path string, body, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("observer: unexpected status %d from %s", resp.StatusCode, path)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
