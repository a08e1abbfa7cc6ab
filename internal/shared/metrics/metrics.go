package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	runsStartedTotal   atomic.Uint64
	runsCompletedTotal atomic.Uint64
	runsFailedTotal    atomic.Uint64

	segmentsCompletedTotal atomic.Uint64
	segmentsFailedTotal    atomic.Uint64
	segmentsSkippedTotal   atomic.Uint64

	oracleCallsTotal    atomic.Uint64
	oracleRetriesTotal  atomic.Uint64
	oracleFailuresTotal atomic.Uint64

	validationScansTotal   atomic.Uint64
	mismatchesWrittenTotal atomic.Uint64

	jobsReceivedTotal  atomic.Uint64
	jobsCompletedTotal atomic.Uint64
	jobsFailedTotal    atomic.Uint64
	jobsDiscardedTotal atomic.Uint64

	runDuration    = newHistogram([]float64{1000, 5000, 15000, 30000, 60000, 120000, 300000, 600000})
	oracleDuration = newHistogram([]float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000})
)

// IncRunStarted increments the started-runs counter.
func IncRunStarted() { runsStartedTotal.Add(1) }

// IncRunCompleted increments the completed-runs counter.
func IncRunCompleted() { runsCompletedTotal.Add(1) }

// IncRunFailed increments the failed-runs counter.
func IncRunFailed() { runsFailedTotal.Add(1) }

// IncSegmentCompleted increments the completed-segments counter.
func IncSegmentCompleted() { segmentsCompletedTotal.Add(1) }

// IncSegmentFailed increments the failed-segments counter.
func IncSegmentFailed() { segmentsFailedTotal.Add(1) }

// IncSegmentSkipped increments the skipped-segments counter.
func IncSegmentSkipped() { segmentsSkippedTotal.Add(1) }

// IncOracleCall increments the oracle-calls counter.
func IncOracleCall() { oracleCallsTotal.Add(1) }

// IncOracleRetry increments the oracle-retries counter.
func IncOracleRetry() { oracleRetriesTotal.Add(1) }

// IncOracleFailure increments the oracle-failures counter (post-retry).
func IncOracleFailure() { oracleFailuresTotal.Add(1) }

// IncValidationScan increments the validation-scans counter.
func IncValidationScan() { validationScansTotal.Add(1) }

// AddMismatchesWritten adds to the written-mismatches counter.
func AddMismatchesWritten(n int) {
	if n > 0 {
		mismatchesWrittenTotal.Add(uint64(n))
	}
}

// IncJobReceived increments the queue-jobs-received counter.
func IncJobReceived() { jobsReceivedTotal.Add(1) }

// IncJobCompleted increments the queue-jobs-completed counter.
func IncJobCompleted() { jobsCompletedTotal.Add(1) }

// IncJobFailed increments the queue-jobs-failed counter.
func IncJobFailed() { jobsFailedTotal.Add(1) }

// IncJobDiscarded increments the counter for jobs dropped as unrecoverable.
func IncJobDiscarded() { jobsDiscardedTotal.Add(1) }

// ObserveRunDurationMs records a full pipeline run duration in milliseconds.
func ObserveRunDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	runDuration.Observe(value)
}

// ObserveOracleDurationMs records a single oracle call duration in milliseconds.
func ObserveOracleDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	oracleDuration.Observe(value)
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
	writeCounter(&buf, "analysis_runs_started_total", "Total analysis runs started", runsStartedTotal.Load())
	writeCounter(&buf, "analysis_runs_completed_total", "Total analysis runs completed", runsCompletedTotal.Load())
	writeCounter(&buf, "analysis_runs_failed_total", "Total analysis runs failed", runsFailedTotal.Load())
	writeCounter(&buf, "segments_completed_total", "Total segments extracted successfully", segmentsCompletedTotal.Load())
	writeCounter(&buf, "segments_failed_total", "Total segments that failed extraction", segmentsFailedTotal.Load())
	writeCounter(&buf, "segments_skipped_total", "Total segments skipped with empty extraction", segmentsSkippedTotal.Load())
	writeCounter(&buf, "oracle_calls_total", "Total oracle generate calls", oracleCallsTotal.Load())
	writeCounter(&buf, "oracle_retries_total", "Total oracle call retries", oracleRetriesTotal.Load())
	writeCounter(&buf, "oracle_failures_total", "Total oracle calls failed after retries", oracleFailuresTotal.Load())
	writeCounter(&buf, "validation_scans_total", "Total validation scans executed", validationScansTotal.Load())
	writeCounter(&buf, "mismatches_written_total", "Total mismatch findings written", mismatchesWrittenTotal.Load())
	writeCounter(&buf, "queue_jobs_received_total", "Total queue jobs received", jobsReceivedTotal.Load())
	writeCounter(&buf, "queue_jobs_completed_total", "Total queue jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "queue_jobs_failed_total", "Total queue jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "queue_jobs_discarded_total", "Total queue jobs dropped as unrecoverable", jobsDiscardedTotal.Load())
	writeHistogram(&buf, "analysis_run_duration_ms", "Analysis run duration in milliseconds", runDuration.Snapshot())
	writeHistogram(&buf, "oracle_call_duration_ms", "Oracle call duration in milliseconds", oracleDuration.Snapshot())
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

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
