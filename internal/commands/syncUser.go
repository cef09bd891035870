package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"palaver/internal/api"
	"palaver/internal/config"
)

// SyncUser registers or refreshes a user through the admin API of a running server.
func SyncUser(externalID, displayName string, cfg *config.Config) error {
	reqBody, err := json.Marshal(api.SyncUserRequest{ExternalID: externalID, DisplayName: displayName})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.AdminUser != "" {
		req.SetBasicAuth(cfg.AdminUser, cfg.AdminPassword)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("failed to sync user (Status: %d): %s", resp.StatusCode, string(body))
	}

	var result api.SyncUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("\nUser Synced Successfully!\n")
	fmt.Printf("User ID:      %s\n", result.User.ID)
	fmt.Printf("External ID:  %s\n", result.User.ExternalID)
	fmt.Printf("Display Name: %s\n\n", result.User.DisplayName)
	fmt.Println("Clients authenticate with the external id.")
	return nil
}
