package commands

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"palaver/internal/api"
	"palaver/internal/config"
	"palaver/internal/models"
)

func TestSyncUser(t *testing.T) {
	var got api.SyncUserRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/users" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if u, p, ok := r.BasicAuth(); !ok || u != "root" || p != "pw" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(api.SyncUserResponse{
			APIResponse: api.APIResponse{Success: true},
			User:        models.User{ID: "u1", ExternalID: got.ExternalID},
		})
	}))
	defer srv.Close()

	cfg := &config.Config{
		AdminAddr:     strings.TrimPrefix(srv.URL, "http://"),
		AdminUser:     "root",
		AdminPassword: "pw",
	}
	if err := SyncUser("ext-1", "Ext One", cfg); err != nil {
		t.Fatalf("SyncUser: %v", err)
	}
	if got.ExternalID != "ext-1" || got.DisplayName != "Ext One" {
		t.Errorf("server received %+v", got)
	}

	cfg.AdminPassword = "wrong"
	if err := SyncUser("ext-1", "", cfg); err == nil {
		t.Error("expected error on 401")
	}
}
