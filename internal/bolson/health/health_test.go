package health

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("db", func(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} })
	c.Register("queue", func(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded, Message: "backlog"} })

	report := c.Run(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("Status = %v, want degraded", report.Status)
	}
	if len(report.Components) != 2 {
		t.Errorf("len(Components) = %d, want 2", len(report.Components))
	}
}

func TestRunDownOverridesDegraded(t *testing.T) {
	c := NewChecker()
	c.Register("a", func(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusDegraded} })
	c.Register("b", func(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusDown} })

	report := c.Run(context.Background())
	if report.Status != StatusDown {
		t.Errorf("Status = %v, want down", report.Status)
	}
}

func TestRunAllUp(t *testing.T) {
	c := NewChecker()
	c.Register("a", func(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} })
	report := c.Run(context.Background())
	if report.Status != StatusUp {
		t.Errorf("Status = %v, want up", report.Status)
	}
}

func TestRegisterReplacesExistingCheck(t *testing.T) {
	c := NewChecker()
	c.Register("a", func(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusDown} })
	c.Register("a", func(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} })

	report := c.Run(context.Background())
	if report.Components["a"].Status != StatusUp {
		t.Errorf("Components[a].Status = %v, want up (replaced check)", report.Components["a"].Status)
	}
}

func TestLiveHandlerAlwaysOK(t *testing.T) {
	c := NewChecker()
	c.Register("anything", func(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusDown} })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	c.LiveHandler()(w, req)

	if w.Code != 200 {
		t.Errorf("status = %d, want 200 regardless of check state", w.Code)
	}
}

func TestReadyHandlerReflectsChecks(t *testing.T) {
	c := NewChecker()
	c.Register("db", func(ctx context.Context) ComponentHealth { return ComponentHealth{Status: StatusDown} })

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/readyz", nil)
	c.ReadyHandler()(w, req)

	if w.Code != 503 {
		t.Errorf("status = %d, want 503 when a component is down", w.Code)
	}
	var report Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if report.Status != StatusDown {
		t.Errorf("decoded Status = %v, want down", report.Status)
	}
}
