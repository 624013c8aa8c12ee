package activity

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"backend-runlink/internal/session"
)

func newTestApp(t *testing.T, runner string) (*fiber.App, *Manager) {
	t.Helper()
	mgr := newTestManager(t, &memPublisher{})
	app := fiber.New()
	RegisterRoutes(app.Group("/activities"), mgr, func(c *fiber.Ctx) error {
		c.Locals("runner_id", runner)
		return c.Next()
	})
	return app, mgr
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestActivityHandlersLifecycle(t *testing.T) {
	app, _ := newTestApp(t, "runner-1")

	resp := doJSON(t, app, http.MethodPost, "/activities/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status = %d", resp.StatusCode)
	}
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.State != session.StateActive {
		t.Fatalf("state = %s", snap.State)
	}

	fix := map[string]any{"latitude": 0.0, "longitude": 0.0, "horizontal_accuracy_m": 5.0, "timestamp_ms": 1_700_000_000_000}
	resp = doJSON(t, app, http.MethodPost, "/activities/sessions/"+snap.ID+"/fixes", fix)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("fix status = %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPost, "/activities/sessions/"+snap.ID+"/pause", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("pause status = %d", resp.StatusCode)
	}
	resp = doJSON(t, app, http.MethodPost, "/activities/sessions/"+snap.ID+"/resume", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("resume status = %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodGet, "/activities/sessions/"+snap.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("snapshot status = %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPost, "/activities/sessions/"+snap.ID+"/stop", stopRequest{CreatedOffline: true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stop status = %d", resp.StatusCode)
	}
	var rec session.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if rec.ID != snap.ID || !rec.CreatedOffline {
		t.Fatalf("record = %+v", rec)
	}

	// The record is durable now; the live session is gone.
	resp = doJSON(t, app, http.MethodGet, "/activities/sessions/"+snap.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("snapshot after stop status = %d", resp.StatusCode)
	}
}

func TestActivityHandlersStoppedSessionGone(t *testing.T) {
	app, _ := newTestApp(t, "runner-1")

	resp := doJSON(t, app, http.MethodPost, "/activities/sessions", nil)
	var snap session.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	doJSON(t, app, http.MethodPost, "/activities/sessions/"+snap.ID+"/stop", nil)

	resp = doJSON(t, app, http.MethodPost, "/activities/sessions/"+snap.ID+"/resume", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("resume after stop status = %d", resp.StatusCode)
	}
	resp = doJSON(t, app, http.MethodPost, "/activities/sessions/"+snap.ID+"/stop", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("double stop status = %d", resp.StatusCode)
	}
}

func TestActivityHandlersForbiddenAndNotFound(t *testing.T) {
	app, mgr := newTestApp(t, "runner-2")

	snap, err := mgr.StartSession("runner-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	resp := doJSON(t, app, http.MethodPost, "/activities/sessions/"+snap.ID+"/pause", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger pause status = %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodPost, "/activities/sessions/missing/pause", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing session status = %d", resp.StatusCode)
	}
}

func TestActivityHandlersSyncAndQueue(t *testing.T) {
	app, _ := newTestApp(t, "runner-1")

	resp := doJSON(t, app, http.MethodPost, "/activities/sync", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status = %d", resp.StatusCode)
	}

	resp = doJSON(t, app, http.MethodGet, "/activities/queue", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("queue status = %d", resp.StatusCode)
	}
}

func TestActivityHandlersFixBadRequest(t *testing.T) {
	app, mgr := newTestApp(t, "runner-1")

	snap, err := mgr.StartSession("runner-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/activities/sessions/"+snap.ID+"/fixes", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request, got %d (%v)", resp.StatusCode, err)
	}
}
