package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	jobsCreatedTotal   atomic.Uint64
	jobsCompletedTotal atomic.Uint64
	jobsFailedTotal    atomic.Uint64
	jobsCancelledTotal atomic.Uint64

	phaseEventsReceivedTotal atomic.Uint64
	phaseEventsFailedTotal   atomic.Uint64
	phaseEventsDroppedTotal  atomic.Uint64

	registryLookupsTotal       atomic.Uint64
	registryLookupsFailedTotal atomic.Uint64

	generationDuration = newHistogram([]float64{500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 300000})
)

// IncJobsCreated increments the created-jobs counter.
func IncJobsCreated() { jobsCreatedTotal.Add(1) }

// IncJobsCompleted increments the completed-jobs counter.
func IncJobsCompleted() { jobsCompletedTotal.Add(1) }

// IncJobsFailed increments the failed-jobs counter.
func IncJobsFailed() { jobsFailedTotal.Add(1) }

// IncJobsCancelled increments the cancelled-jobs counter.
func IncJobsCancelled() { jobsCancelledTotal.Add(1) }

// IncPhaseEventsReceived increments the received phase-event counter.
func IncPhaseEventsReceived() { phaseEventsReceivedTotal.Add(1) }

// IncPhaseEventsFailed increments the failed phase-event counter.
func IncPhaseEventsFailed() { phaseEventsFailedTotal.Add(1) }

// IncPhaseEventsDropped increments the counter of unrecoverable payloads.
func IncPhaseEventsDropped() { phaseEventsDroppedTotal.Add(1) }

// IncRegistryLookups increments the registry-lookup counter.
func IncRegistryLookups() { registryLookupsTotal.Add(1) }

// IncRegistryLookupsFailed increments the failed registry-lookup counter.
func IncRegistryLookupsFailed() { registryLookupsFailedTotal.Add(1) }

// ObserveGenerationDurationMs records one generation attempt duration.
func ObserveGenerationDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	generationDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "materials_jobs_created_total", "Total materials jobs created", jobsCreatedTotal.Load())
	writeCounter(&buf, "materials_jobs_completed_total", "Total materials jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "materials_jobs_failed_total", "Total materials jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "materials_jobs_cancelled_total", "Total materials jobs cancelled", jobsCancelledTotal.Load())
	writeCounter(&buf, "phase_events_received_total", "Total phase events received by the worker", phaseEventsReceivedTotal.Load())
	writeCounter(&buf, "phase_events_failed_total", "Total phase events whose processing failed", phaseEventsFailedTotal.Load())
	writeCounter(&buf, "phase_events_dropped_total", "Total unrecoverable phase event payloads dropped", phaseEventsDroppedTotal.Load())
	writeCounter(&buf, "registry_lookups_total", "Total company registry lookups", registryLookupsTotal.Load())
	writeCounter(&buf, "registry_lookups_failed_total", "Total failed company registry lookups", registryLookupsFailedTotal.Load())
	writeHistogram(&buf, "generation_duration_ms", "Document generation duration in milliseconds", generationDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	for i, bound := range snap.buckets {
		fmt.Fprintf(buf, "%s_bucket{le=\"%g\"} %d\n", name, bound, snap.counts[i])
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %g\n", name, snap.sum)
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}
