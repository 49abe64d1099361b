package nsm

import (
	"context"
	"sync"

	"github.com/wemix/nhm/internal/types"
)

// RestartRequest records one RequestNodeRestart call observed by FakeTransport.
type RestartRequest struct {
	Reason types.RestartReason
	Kind   types.ShutdownType
}

// FakeTransport is an in-memory Transport for tests: every call is
// recorded, and the restart/registration outcome is scripted via the
// RegisterErr and RestartErr fields.
type FakeTransport struct {
	mu sync.Mutex

	RegisterErr error
	RestartErr  error // set to a *RejectionError to simulate a policy rejection

	Registrations []struct {
		BusName, ObjName string
		Mode              types.ShutdownType
		TimeoutMS         uint32
	}
	HealthUpdates []struct {
		AppName string
		Running bool
	}
	RestartRequests []RestartRequest
}

func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

func (f *FakeTransport) RegisterShutdownClient(ctx context.Context, busName, objName string, mode types.ShutdownType, timeoutMS uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Registrations = append(f.Registrations, struct {
		BusName, ObjName string
		Mode              types.ShutdownType
		TimeoutMS         uint32
	}{busName, objName, mode, timeoutMS})
	return f.RegisterErr
}

func (f *FakeTransport) SetAppHealthStatus(ctx context.Context, appName string, running bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HealthUpdates = append(f.HealthUpdates, struct {
		AppName string
		Running bool
	}{appName, running})
	return nil
}

func (f *FakeTransport) RequestNodeRestart(ctx context.Context, reason types.RestartReason, kind types.ShutdownType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RestartRequests = append(f.RestartRequests, RestartRequest{Reason: reason, Kind: kind})
	return f.RestartErr
}

// RestartCallCount returns how many restart requests have been observed.
func (f *FakeTransport) RestartCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.RestartRequests)
}
