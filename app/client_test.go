package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/micromdm/nanolib/log"
)

func TestClientCapabilities(t *testing.T) {
	var paths []string
	var login struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	running := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/app/login":
			json.NewDecoder(r.Body).Decode(&login)
		case "/app/status":
			json.NewEncoder(w).Encode(map[string]bool{"running": running})
		case "/app/kill":
			running = false
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "svc", "hunter2")
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Login(ctx); err != nil {
		t.Fatal(err)
	}
	if login.Username != "svc" || login.Password != "hunter2" {
		t.Errorf("login payload: %+v", login)
	}
	if err := c.OpenPatient(ctx, "0101001234"); err != nil {
		t.Fatal(err)
	}
	if !c.Running(ctx) {
		t.Error("expected running")
	}

	Shutdown(ctx, c, log.NopLogger)
	if c.Running(ctx) {
		t.Error("expected terminated")
	}

	// soft close must come before the kill
	var closeAt, killAt int
	for i, p := range paths {
		switch p {
		case "/app/close":
			closeAt = i
		case "/app/kill":
			killAt = i
		}
	}
	if killAt < closeAt {
		t.Errorf("kill before soft close: %v", paths)
	}
}
