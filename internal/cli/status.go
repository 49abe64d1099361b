package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/wemix/nhm/internal/config"
	"github.com/wemix/nhm/pkg/logger"
)

// NewStatusCommand queries the local API's /api/v1/status endpoint.
func NewStatusCommand(cfg *config.Config, log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running monitor's status",
		Long:  `Query the local nhm API for facade/metrics attachment status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON(statusURL(cfg, "/api/v1/status"))
		},
	}
	return cmd
}

// NewRestartCommand requests a node restart for a named app through the API.
func NewRestartCommand(cfg *config.Config, log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart <app-name>",
		Short: "Request a node restart for an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := statusURL(cfg, fmt.Sprintf("/api/v1/apps/%s/restart", args[0]))
			req, err := http.NewRequest(http.MethodPost, url, nil)
			if err != nil {
				return err
			}
			if cfg.API.JWTSecret != "" {
				req.Header.Set("X-API-Key", cfg.API.JWTSecret)
			}
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			fmt.Println(string(body))
			return nil
		},
	}
	return cmd
}

func statusURL(cfg *config.Config, path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", cfg.API.Port, path)
}

func getJSON(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
