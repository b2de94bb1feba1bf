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
	jobsSubmittedTotal atomic.Uint64
	jobsStartedTotal   atomic.Uint64
	jobsCompletedTotal atomic.Uint64
	jobsFailedTotal    atomic.Uint64

	augmentSkippedTotal   atomic.Uint64
	providerFallbackTotal atomic.Uint64

	pdfCacheHitsTotal      atomic.Uint64
	pdfCacheMissesTotal    atomic.Uint64
	pdfCacheEvictionsTotal atomic.Uint64
	pdfRenderFailedTotal   atomic.Uint64

	jobDuration = newHistogram([]float64{500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 300000})
)

// IncJobsSubmitted increments the submitted counter.
func IncJobsSubmitted() { jobsSubmittedTotal.Add(1) }

// IncJobsStarted increments the started counter.
func IncJobsStarted() { jobsStartedTotal.Add(1) }

// IncJobsCompleted increments the completed counter.
func IncJobsCompleted() { jobsCompletedTotal.Add(1) }

// IncJobsFailed increments the failed counter.
func IncJobsFailed() { jobsFailedTotal.Add(1) }

// IncAugmentSkipped increments the counter of jobs that ran without tool context.
func IncAugmentSkipped() { augmentSkippedTotal.Add(1) }

// IncProviderFallback increments the counter of generate calls served by a non-primary provider.
func IncProviderFallback() { providerFallbackTotal.Add(1) }

// IncPDFCacheHit increments the PDF cache hit counter.
func IncPDFCacheHit() { pdfCacheHitsTotal.Add(1) }

// IncPDFCacheMiss increments the PDF cache miss counter.
func IncPDFCacheMiss() { pdfCacheMissesTotal.Add(1) }

// IncPDFCacheEviction increments the PDF cache eviction counter.
func IncPDFCacheEviction() { pdfCacheEvictionsTotal.Add(1) }

// IncPDFRenderFailed increments the render failure counter.
func IncPDFRenderFailed() { pdfRenderFailedTotal.Add(1) }

// ObserveJobDurationMs records an end-to-end job duration in milliseconds.
func ObserveJobDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	jobDuration.Observe(value)
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
	writeCounter(&buf, "analysis_jobs_submitted_total", "Total analysis jobs submitted", jobsSubmittedTotal.Load())
	writeCounter(&buf, "analysis_jobs_started_total", "Total analysis jobs started", jobsStartedTotal.Load())
	writeCounter(&buf, "analysis_jobs_completed_total", "Total analysis jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "analysis_jobs_failed_total", "Total analysis jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "analysis_augment_skipped_total", "Total jobs generated without tool context", augmentSkippedTotal.Load())
	writeCounter(&buf, "analysis_provider_fallback_total", "Total generate calls served by a fallback provider", providerFallbackTotal.Load())
	writeCounter(&buf, "pdf_cache_hits_total", "Total PDF cache hits", pdfCacheHitsTotal.Load())
	writeCounter(&buf, "pdf_cache_misses_total", "Total PDF cache misses", pdfCacheMissesTotal.Load())
	writeCounter(&buf, "pdf_cache_evictions_total", "Total PDF cache evictions", pdfCacheEvictionsTotal.Load())
	writeCounter(&buf, "pdf_render_failed_total", "Total PDF render failures", pdfRenderFailedTotal.Load())
	writeHistogram(&buf, "analysis_job_duration_ms", "Analysis job duration in milliseconds", jobDuration.Snapshot())
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
