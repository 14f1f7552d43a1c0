package metrics

import (
	"sync"
	"time"
)

// Metrics collects in-memory pipeline counters, exposed on the health API.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	CandidatesIngested int64
	DuplicatesSkipped  int64
	SourceFailures     int64
	CandidatesEnriched int64
	EnrichmentErrors   int64
	WeightUpdateRuns   int64
	OutcomesEvaluated  int64
	AlertsSent         int64
	AlertFailures      int64

	// Timings
	LastIngestDuration time.Duration
	LastEnrichDuration time.Duration

	// Status
	LastRunTime   time.Time
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) AddIngested(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CandidatesIngested += int64(n)
}

func (m *Metrics) AddDuplicatesSkipped(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesSkipped += int64(n)
}

func (m *Metrics) IncrementSourceFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SourceFailures++
}

func (m *Metrics) AddEnriched(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CandidatesEnriched += int64(n)
}

func (m *Metrics) AddEnrichmentErrors(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EnrichmentErrors += int64(n)
}

func (m *Metrics) IncrementWeightUpdateRuns() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WeightUpdateRuns++
}

func (m *Metrics) AddOutcomesEvaluated(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OutcomesEvaluated += int64(n)
}

func (m *Metrics) IncrementAlertsSent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AlertsSent++
}

func (m *Metrics) IncrementAlertFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AlertFailures++
}

func (m *Metrics) RecordIngestDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastIngestDuration = d
}

func (m *Metrics) RecordEnrichDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastEnrichDuration = d
}

func (m *Metrics) SetLastRun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastRunTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"candidates_ingested":     m.CandidatesIngested,
		"duplicates_skipped":      m.DuplicatesSkipped,
		"source_failures":         m.SourceFailures,
		"candidates_enriched":     m.CandidatesEnriched,
		"enrichment_errors":       m.EnrichmentErrors,
		"weight_update_runs":      m.WeightUpdateRuns,
		"outcomes_evaluated":      m.OutcomesEvaluated,
		"alerts_sent":             m.AlertsSent,
		"alert_failures":          m.AlertFailures,
		"last_ingest_duration_ms": m.LastIngestDuration.Milliseconds(),
		"last_enrich_duration_ms": m.LastEnrichDuration.Milliseconds(),
		"last_run_time":           m.LastRunTime.Format(time.RFC3339),
		"last_error_time":         m.LastErrorTime.Format(time.RFC3339),
		"last_error":              m.LastError,
		"is_healthy":              m.IsHealthy,
	}
}
