package nsm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wemix/nhm/internal/types"
)

// httpTransport is a thin HTTP/JSON adapter implementing Transport against
// an NSM HTTP shim, for deployments without a native bus binding available
// to pure Go (the same shape internal/observer.httpSupervisorClient uses
// for the unit supervisor connection).
type httpTransport struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPTransport builds a production Transport that talks to an NSM
// HTTP shim at baseURL.
func NewHTTPTransport(baseURL string, timeout time.Duration) Transport {
	return &httpTransport{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type registerShutdownClientRequest struct {
	BusName   string `json:"bus_name"`
	ObjName   string `json:"obj_name"`
	Mode      string `json:"mode"`
	TimeoutMS uint32 `json:"timeout_ms"`
}

func (t *httpTransport) RegisterShutdownClient(ctx context.Context, busName, objName string, mode types.ShutdownType, timeoutMS uint32) error {
	return t.post(ctx, "/shutdown-clients", registerShutdownClientRequest{
		BusName:   busName,
		ObjName:   objName,
		Mode:      mode.String(),
		TimeoutMS: timeoutMS,
	}, nil)
}

type setAppHealthStatusRequest struct {
	AppName string `json:"app_name"`
	Running bool   `json:"running"`
}

func (t *httpTransport) SetAppHealthStatus(ctx context.Context, appName string, running bool) error {
	return t.post(ctx, "/app-health", setAppHealthStatusRequest{AppName: appName, Running: running}, nil)
}

type requestNodeRestartRequest struct {
	Reason string `json:"reason"`
	Kind   string `json:"kind"`
}

type requestNodeRestartResponse struct {
	Rejected bool   `json:"rejected"`
	Reason   string `json:"reason"`
}

func (t *httpTransport) RequestNodeRestart(ctx context.Context, reason types.RestartReason, kind types.ShutdownType) error {
	var out requestNodeRestartResponse
	if err := t.post(ctx, "/restart-requests", requestNodeRestartRequest{
		Reason: reason.String(),
		Kind:   kind.String(),
	}, &out); err != nil {
		return err
	}
	if out.Rejected {
		return &RejectionError{Reason: out.Reason}
	}
	return nil
}

func (t *httpTransport) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("nsm: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("nsm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("nsm: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("nsm: unexpected status %d from %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
