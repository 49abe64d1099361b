// Package nsm implements NHM's NSM peer client: shutdown-client registration, app health propagation,
// restart requests, and the lifecycle-consumer callback surface.
package nsm

import (
	"context"
	"sync"

	"github.com/wemix/nhm/internal/types"
	"github.com/wemix/nhm/pkg/logger"
)

// Transport is the out-of-scope "concrete IPC/bus implementation"
// the client is built against — one bus method per NSM
// operation. Production code gets an HTTP/JSON adapter; tests get an
// in-memory fake.
type Transport interface {
	RegisterShutdownClient(ctx context.Context, busName, objName string, mode types.ShutdownType, timeoutMS uint32) error
	SetAppHealthStatus(ctx context.Context, appName string, running bool) error
	RequestNodeRestart(ctx context.Context, reason types.RestartReason, kind types.ShutdownType) error
}

// LifecycleHandler is invoked when the NSM delivers a LifecycleRequest
// callback to this service's lifecycle-consumer interface.
type LifecycleHandler func(ctx context.Context, reqType types.LifecycleRequestType, requestID uint32) error

// Client wraps a Transport with the request/response shape
// describes, translating transport failures into the façade's
// AppErrorStatus vocabulary.
type Client struct {
	transport Transport
	log       *logger.Logger

	mu      sync.Mutex
	handler LifecycleHandler
}

// New builds a Client over transport.
func New(transport Transport, log *logger.Logger) *Client {
	return &Client{transport: transport, log: log}
}

// RegisterShutdownClient registers this service as an NSM shutdown client.
// Per step 4, failure here is fatal to startup.
func (c *Client) RegisterShutdownClient(ctx context.Context, busName, objName string, mode types.ShutdownType, timeoutMS uint32) error {
	return c.transport.RegisterShutdownClient(ctx, busName, objName, mode, timeoutMS)
}

// SetAppHealthStatus forwards an app's running state to the NSM. Failure
// is logged but never aborts the caller.
func (c *Client) SetAppHealthStatus(ctx context.Context, appName string, running bool) {
	if err := c.transport.SetAppHealthStatus(ctx, appName, running); err != nil {
		if c.log != nil {
			c.log.Warn("nsm: SetAppHealthStatus failed", "app", appName, "running", running, "error", err.Error())
		}
	}
}

// RequestNodeRestart issues a restart request and maps the transport
// outcome onto AppErrorStatus.
func (c *Client) RequestNodeRestart(ctx context.Context, reason types.RestartReason, kind types.ShutdownType) types.AppErrorStatus {
	err := c.transport.RequestNodeRestart(ctx, reason, kind)
	if err == nil {
		return types.AppErrorOk
	}
	if rejErr, ok := err.(*RejectionError); ok {
		if c.log != nil {
			c.log.Warn("nsm: restart request rejected", "reason", rejErr.Reason)
		}
		return types.AppErrorRestartNotPossible
	}
	if c.log != nil {
		c.log.Error("nsm: restart request transport failure", "error", err.Error())
	}
	return types.AppErrorError
}

// SetLifecycleHandler installs the callback invoked by Deliver.
func (c *Client) SetLifecycleHandler(h LifecycleHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Deliver is called by the Transport (or its test double) to simulate the
// NSM pushing a LifecycleRequest to this service's consumer interface.
func (c *Client) Deliver(ctx context.Context, reqType types.LifecycleRequestType, requestID uint32) error {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		return nil
	}
	return h(ctx, reqType, requestID)
}

// RejectionError distinguishes a policy rejection (mapped to
// RestartNotPossible) from any other transport failure (mapped to Error).
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "nsm: rejected: " + e.Reason
}
