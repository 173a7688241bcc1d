package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	jobsSubmittedTotal     atomic.Uint64
	jobsStartedTotal       atomic.Uint64
	jobsCompletedTotal     atomic.Uint64
	jobsFailedTotal        atomic.Uint64
	llmRetriesTotal        atomic.Uint64
	comparisonRunsTotal    atomic.Uint64
	comparisonCacheHits    atomic.Uint64
	comparisonChunkFailed  atomic.Uint64
	publisherDroppedTotal  atomic.Uint64
	queueMessagesReceived  atomic.Uint64
	queueMessagesDiscarded atomic.Uint64

	jobDuration        = newHistogram([]float64{1000, 5000, 15000, 60000, 300000, 900000, 1800000})
	comparisonDuration = newHistogram([]float64{500, 1000, 5000, 15000, 60000, 300000})
)

// IncJobsSubmitted counts newly created jobs (idempotent replays excluded).
func IncJobsSubmitted() { jobsSubmittedTotal.Add(1) }

// IncJobsStarted counts queued->processing transitions.
func IncJobsStarted() { jobsStartedTotal.Add(1) }

// IncJobsCompleted counts jobs that reached done.
func IncJobsCompleted() { jobsCompletedTotal.Add(1) }

// IncJobsFailed counts jobs that reached failed.
func IncJobsFailed() { jobsFailedTotal.Add(1) }

// IncLLMRetries counts retried model calls.
func IncLLMRetries() { llmRetriesTotal.Add(1) }

// IncComparisonRuns counts comparison runs that called the model.
func IncComparisonRuns() { comparisonRunsTotal.Add(1) }

// IncComparisonCacheHits counts comparisons served from cache.
func IncComparisonCacheHits() { comparisonCacheHits.Add(1) }

// IncComparisonChunkFailures counts comparison chunks that exhausted retries.
func IncComparisonChunkFailures() { comparisonChunkFailed.Add(1) }

// IncPublisherDropped counts snapshots dropped for slow subscribers.
func IncPublisherDropped() { publisherDroppedTotal.Add(1) }

// IncQueueReceived counts queue messages received by the worker.
func IncQueueReceived() { queueMessagesReceived.Add(1) }

// IncQueueDiscarded counts unprocessable queue messages deleted by the worker.
func IncQueueDiscarded() { queueMessagesDiscarded.Add(1) }

// ObserveJobDurationMs records a job duration in milliseconds.
func ObserveJobDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	jobDuration.Observe(value)
}

// ObserveComparisonDurationMs records a comparison duration in milliseconds.
func ObserveComparisonDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	comparisonDuration.Observe(value)
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
	writeCounter(&buf, "extraction_jobs_submitted_total", "Total extraction jobs created", jobsSubmittedTotal.Load())
	writeCounter(&buf, "extraction_jobs_started_total", "Total extraction jobs started", jobsStartedTotal.Load())
	writeCounter(&buf, "extraction_jobs_completed_total", "Total extraction jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "extraction_jobs_failed_total", "Total extraction jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "llm_retries_total", "Total retried model calls", llmRetriesTotal.Load())
	writeCounter(&buf, "comparison_runs_total", "Total comparison runs executed", comparisonRunsTotal.Load())
	writeCounter(&buf, "comparison_cache_hits_total", "Total comparisons served from cache", comparisonCacheHits.Load())
	writeCounter(&buf, "comparison_chunk_failures_total", "Total comparison chunks failed", comparisonChunkFailed.Load())
	writeCounter(&buf, "progress_dropped_total", "Total snapshots dropped for slow subscribers", publisherDroppedTotal.Load())
	writeCounter(&buf, "queue_messages_received_total", "Total queue messages received", queueMessagesReceived.Load())
	writeCounter(&buf, "queue_messages_discarded_total", "Total unprocessable queue messages deleted", queueMessagesDiscarded.Load())
	writeHistogram(&buf, "extraction_job_duration_ms", "Extraction job duration in milliseconds", jobDuration.Snapshot())
	writeHistogram(&buf, "comparison_duration_ms", "Comparison duration in milliseconds", comparisonDuration.Snapshot())
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
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
