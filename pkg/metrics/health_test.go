package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func resetHealth() {
	health = newHealthRegistry()
}

func TestSetHealthy_AutoRegisters(t *testing.T) {
	resetHealth()

	SetHealthy("coordinator", "running")

	status := GetHealth()
	if status.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", status.Status)
	}
	if status.Components["coordinator"] != "healthy" {
		t.Errorf("unexpected coordinator state: %s", status.Components["coordinator"])
	}
}

func TestGetHealth_PendingComponentDoesNotFail(t *testing.T) {
	resetHealth()

	RegisterComponent("mesh", true)
	SetHealthy("coordinator", "running")

	status := GetHealth()
	if status.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", status.Status)
	}
	if status.Components["mesh"] != "pending" {
		t.Errorf("registered but unreported state should show pending, got '%s'", status.Components["mesh"])
	}
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	resetHealth()

	SetHealthy("coordinator", "running")
	SetUnhealthy("mesh", "not meshed")

	status := GetHealth()
	if status.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", status.Status)
	}
	if status.Components["mesh"] != "unhealthy: not meshed" {
		t.Errorf("unexpected mesh state: %s", status.Components["mesh"])
	}
}

func TestGetReadiness_AllCriticalsHealthy(t *testing.T) {
	resetHealth()

	RegisterComponent("mesh", true)
	RegisterComponent("coordinator", true)
	RegisterComponent("ledger", true)
	SetHealthy("mesh", "meshed")
	SetHealthy("coordinator", "running")
	SetHealthy("ledger", "open")

	readiness := GetReadiness()
	if readiness.Status != "ready" {
		t.Errorf("expected status 'ready', got '%s'", readiness.Status)
	}
}

func TestGetReadiness_PendingCriticalBlocks(t *testing.T) {
	resetHealth()

	RegisterComponent("mesh", true)
	RegisterComponent("coordinator", true)
	SetHealthy("coordinator", "running")

	readiness := GetReadiness()
	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}
	if readiness.Components["mesh"] != "pending" {
		t.Errorf("unexpected mesh state: %s", readiness.Components["mesh"])
	}
}

func TestGetReadiness_IgnoresNonCritical(t *testing.T) {
	resetHealth()

	RegisterComponent("coordinator", true)
	SetHealthy("coordinator", "running")
	SetUnhealthy("events", "subscriber backlog")

	readiness := GetReadiness()
	if readiness.Status != "ready" {
		t.Errorf("non-critical components must not gate readiness, got '%s'", readiness.Status)
	}
}

func TestSetVersion(t *testing.T) {
	resetHealth()

	SetVersion("1.2.3")
	SetHealthy("coordinator", "running")

	if got := GetHealth().Version; got != "1.2.3" {
		t.Errorf("expected version '1.2.3', got '%s'", got)
	}
}

func TestHealthHandler(t *testing.T) {
	resetHealth()

	SetHealthy("coordinator", "running")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthHandler()(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var status HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if status.Status != "healthy" {
		t.Errorf("expected 'healthy', got '%s'", status.Status)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	resetHealth()

	SetUnhealthy("ledger", "closed")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	HealthHandler()(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	resetHealth()

	RegisterComponent("mesh", true)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	ReadyHandler()(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}
