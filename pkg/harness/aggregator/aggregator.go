// Package aggregator implements the harness's HTTP metrics endpoint: GET
// /health, POST /metrics, and the exit-code policy that lets an
// orchestrator know whether every expected worker succeeded before the
// containers are torn down.
//
// Built directly on net/http's ServeMux rather than a routing framework
// — see DESIGN.md for the rationale.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/convergedb/sync/pkg/logger"
)

// Operation names which half of a load-test worker filed a report.
type Operation string

const (
	OperationPopulate Operation = "populate"
	OperationVerify   Operation = "verify"
)

// PopulateMetrics carries the populate-specific fields of a report.
type PopulateMetrics struct {
	RowsProcessed  int64   `json:"rows_processed"`
	DurationMs     int64   `json:"duration_ms"`
	BatchCount     int     `json:"batch_count"`
	RowsPerSecond  float64 `json:"rows_per_second"`
	BytesWritten   int64   `json:"bytes_written,omitempty"`
}

// VerifyMetrics carries the verify-specific fields of a report.
type VerifyMetrics struct {
	RowsMatched int64 `json:"rows_matched"`
	Mismatches  int64 `json:"mismatches"`
	DurationMs  int64 `json:"duration_ms"`
}

// Report is the JSON document a worker POSTs to /metrics.
type Report struct {
	ContainerID string           `json:"container_id"`
	Operation   Operation        `json:"operation"`
	Tables      []string         `json:"tables"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
	Success     bool             `json:"success"`
	Errors      []string         `json:"errors,omitempty"`
	Populate    *PopulateMetrics `json:"populate,omitempty"`
	Verify      *VerifyMetrics   `json:"verify,omitempty"`
}

// Aggregator collects worker reports and serves the harness's HTTP
// surface. Its report table is guarded by a single mutex, held only
// while the table is read or written rather than for a whole request.
type Aggregator struct {
	expectedWorkers int
	log             *logger.Logger

	mu      sync.Mutex
	reports []Report
	done    chan struct{}
	closed  bool
}

// New returns an Aggregator expecting expectedWorkers POST /metrics
// reports before Wait unblocks.
func New(expectedWorkers int, log *logger.Logger) *Aggregator {
	return &Aggregator{
		expectedWorkers: expectedWorkers,
		log:             log,
		done:            make(chan struct{}),
	}
}

// Handler returns the aggregator's http.Handler (GET /health, POST
// /metrics), for embedding in an http.Server by the caller.
func (a *Aggregator) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /metrics", a.handleMetrics)
	return mux
}

func (a *Aggregator) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

func (a *Aggregator) handleMetrics(w http.ResponseWriter, r *http.Request) {
	var report Report
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "invalid report body: "+err.Error(), http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	a.reports = append(a.reports, report)
	received := len(a.reports)
	a.mu.Unlock()

	if a.log != nil {
		a.log.Info("received %s report from %s (success=%v, %d/%d)",
			report.Operation, report.ContainerID, report.Success, received, a.expectedWorkers)
	}

	w.WriteHeader(http.StatusAccepted)

	if received >= a.expectedWorkers {
		a.mu.Lock()
		if !a.closed {
			a.closed = true
			close(a.done)
		}
		a.mu.Unlock()
	}
}

// Wait blocks until expectedWorkers reports have arrived, ctx is done,
// or timeout elapses, whichever first.
func (a *Aggregator) Wait(ctx context.Context, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-a.done:
		return nil
	case <-timer.C:
		return fmt.Errorf("timed out after %s waiting for %d workers (received %d)", timeout, a.expectedWorkers, a.ReportCount())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReportCount returns the number of reports received so far.
func (a *Aggregator) ReportCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.reports)
}

// Reports returns a snapshot of every report received so far.
func (a *Aggregator) Reports() []Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Report(nil), a.reports...)
}

// AllSucceeded reports whether every received report had success=true
// and exactly expectedWorkers reports arrived.
func (a *Aggregator) AllSucceeded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.reports) != a.expectedWorkers {
		return false
	}
	for _, r := range a.reports {
		if !r.Success {
			return false
		}
	}
	return true
}

// ExitCode implements the aggregator's exit-code policy: 0 if every
// expected worker reported success, 1 otherwise (including timeout).
func (a *Aggregator) ExitCode() int {
	if a.AllSucceeded() {
		return 0
	}
	return 1
}

// Summary renders the tabular worker summary the aggregator prints on
// exit.
func (a *Aggregator) Summary() string {
	a.mu.Lock()
	reports := append([]Report(nil), a.reports...)
	a.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%-24s %-10s %-8s %-10s %s\n", "CONTAINER", "OPERATION", "SUCCESS", "DURATION", "TABLES")
	for _, r := range reports {
		duration := r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)
		fmt.Fprintf(&b, "%-24s %-10s %-8v %-10s %s\n", r.ContainerID, r.Operation, r.Success, duration, strings.Join(r.Tables, ","))
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  error: %s\n", e)
		}
	}
	fmt.Fprintf(&b, "\n%d/%d workers reported, all_succeeded=%v\n", len(reports), a.expectedWorkers, a.AllSucceeded())
	return b.String()
}
