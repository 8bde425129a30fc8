package service

import (
	"context"
	"fmt"

	"ermtutor/internal/domain"
)

// HealthReport summarises the tutor and its backends.
type HealthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// OK reports whether every check passed and the index has content.
func (h HealthReport) OK() bool { return h.Status == "ok" }

// Health checks the index state and, when supported, the embedder and extra backends.
func (t *Tutor) Health(ctx context.Context, extra map[string]domain.HealthChecker) HealthReport {
	report := HealthReport{Status: "ok", Checks: map[string]string{}}
	fail := func(name, msg string) {
		report.Checks[name] = msg
		report.Status = "degraded"
	}

	switch state := t.State(); state {
	case StateReady:
		report.Checks["index"] = fmt.Sprintf("ready (%d chunks)", t.deps.Store.Len())
	case StateDegraded:
		fail("index", "no course materials indexed")
	default:
		fail("index", state.String())
	}

	hctx, cancel := t.withTimeout(ctx, t.opts.EmbedTimeout)
	defer cancel()
	if hc, ok := t.deps.Embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(hctx); err != nil {
			fail("embedder", "error: "+UserMessage(err))
		} else {
			report.Checks["embedder"] = "ok"
		}
	}
	for name, hc := range extra {
		if err := hc.HealthCheck(hctx); err != nil {
			fail(name, "error: "+err.Error())
		} else {
			report.Checks[name] = "ok"
		}
	}
	return report
}
