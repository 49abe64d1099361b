package nsm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wemix/nhm/internal/types"
	"github.com/wemix/nhm/pkg/logger"
)

func TestRequestNodeRestartOk(t *testing.T) {
	transport := NewFakeTransport()
	client := New(transport, logger.NewTestLogger())

	status := client.RequestNodeRestart(context.Background(), types.RestartReasonApplicationFailure, types.ShutdownTypeNormal)

	assert.Equal(t, types.AppErrorOk, status)
	require.Len(t, transport.RestartRequests, 1)
	assert.Equal(t, types.RestartReasonApplicationFailure, transport.RestartRequests[0].Reason)
	assert.Equal(t, types.ShutdownTypeNormal, transport.RestartRequests[0].Kind)
}

func TestRequestNodeRestartRejection(t *testing.T) {
	transport := NewFakeTransport()
	transport.RestartErr = &RejectionError{Reason: "no quorum"}
	client := New(transport, logger.NewTestLogger())

	status := client.RequestNodeRestart(context.Background(), types.RestartReasonApplicationFailure, types.ShutdownTypeNormal)

	assert.Equal(t, types.AppErrorRestartNotPossible, status)
}

func TestRequestNodeRestartTransportFailure(t *testing.T) {
	transport := NewFakeTransport()
	transport.RestartErr = assertAnError{}
	client := New(transport, logger.NewTestLogger())

	status := client.RequestNodeRestart(context.Background(), types.RestartReasonApplicationFailure, types.ShutdownTypeNormal)

	assert.Equal(t, types.AppErrorError, status)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "boom" }

func TestSetAppHealthStatusForwards(t *testing.T) {
	transport := NewFakeTransport()
	client := New(transport, logger.NewTestLogger())

	client.SetAppHealthStatus(context.Background(), "payment-svc", true)

	require.Len(t, transport.HealthUpdates, 1)
	assert.Equal(t, "payment-svc", transport.HealthUpdates[0].AppName)
	assert.True(t, transport.HealthUpdates[0].Running)
}

func TestLifecycleHandlerDelivery(t *testing.T) {
	transport := NewFakeTransport()
	client := New(transport, logger.NewTestLogger())

	var got types.LifecycleRequestType
	client.SetLifecycleHandler(func(ctx context.Context, reqType types.LifecycleRequestType, requestID uint32) error {
		got = reqType
		return nil
	})

	require.NoError(t, client.Deliver(context.Background(), types.LifecycleRequestRunup, 42))
	assert.Equal(t, types.LifecycleRequestRunup, got)
}
