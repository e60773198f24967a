package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 提交指标
	SubmissionsTotal    prometheus.Counter
	SubmissionsRejected *prometheus.CounterVec
	SpamBlocked         prometheus.Counter

	// 邮件指标
	EmailsSent       prometheus.Counter
	EmailsFailed     prometheus.Counter
	EmailSendSeconds prometheus.Histogram

	// 存储指标
	EntriesDeleted     prometheus.Counter
	RetentionSweeps    prometheus.Counter
	StorageWriteErrors prometheus.Counter

	// 导出指标
	ExportsTotal   prometheus.Counter
	ExportedRows   prometheus.Counter
	ExportsDenied  prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		// HTTP 请求指标
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zontact_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "zontact_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		// 提交指标
		SubmissionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "zontact_submissions_total",
				Help: "Total number of accepted contact form submissions",
			},
		),

		SubmissionsRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zontact_submissions_rejected_total",
				Help: "Total number of rejected submissions",
			},
			[]string{"reason"},
		),

		SpamBlocked: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "zontact_spam_blocked_total",
				Help: "Total number of honeypot-trapped submissions",
			},
		),

		// 邮件指标
		EmailsSent: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "zontact_emails_sent_total",
				Help: "Total number of notification emails sent",
			},
		),

		EmailsFailed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "zontact_emails_failed_total",
				Help: "Total number of notification email failures",
			},
		),

		EmailSendSeconds: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "zontact_email_send_duration_seconds",
				Help:    "Notification email send duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		// 存储指标
		EntriesDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "zontact_entries_deleted_total",
				Help: "Total number of entries deleted",
			},
		),

		RetentionSweeps: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "zontact_retention_sweeps_total",
				Help: "Total number of retention sweep runs",
			},
		),

		StorageWriteErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "zontact_storage_write_errors_total",
				Help: "Total number of storage write errors",
			},
		),

		// 导出指标
		ExportsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "zontact_exports_total",
				Help: "Total number of CSV exports",
			},
		),

		ExportedRows: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "zontact_exported_rows_total",
				Help: "Total number of rows exported to CSV",
			},
		),

		ExportsDenied: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "zontact_exports_denied_total",
				Help: "Total number of export attempts denied by entitlement",
			},
		),

		// 限流指标
		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zontact_rate_limit_blocks_total",
				Help: "Total number of rate limit blocks",
			},
			[]string{"type"},
		),

		// 错误指标
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zontact_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "zontact_panics_total",
				Help: "Total number of panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSubmission 记录成功提交
func (m *Metrics) RecordSubmission() {
	m.SubmissionsTotal.Inc()
}

// RecordSubmissionRejected 记录被拒绝的提交
func (m *Metrics) RecordSubmissionRejected(reason string) {
	m.SubmissionsRejected.WithLabelValues(reason).Inc()
}

// RecordSpamBlocked 记录蜜罐拦截
func (m *Metrics) RecordSpamBlocked() {
	m.SpamBlocked.Inc()
}

// RecordEmailSent 记录邮件发送成功
func (m *Metrics) RecordEmailSent(duration time.Duration) {
	m.EmailsSent.Inc()
	m.EmailSendSeconds.Observe(duration.Seconds())
}

// RecordEmailFailed 记录邮件发送失败
func (m *Metrics) RecordEmailFailed(duration time.Duration) {
	m.EmailsFailed.Inc()
	m.EmailSendSeconds.Observe(duration.Seconds())
}

// RecordEntriesDeleted 记录删除的留言数
func (m *Metrics) RecordEntriesDeleted(count int) {
	m.EntriesDeleted.Add(float64(count))
}

// RecordRetentionSweep 记录保留期清理运行
func (m *Metrics) RecordRetentionSweep() {
	m.RetentionSweeps.Inc()
}

// RecordStorageWriteError 记录存储写入错误
func (m *Metrics) RecordStorageWriteError() {
	m.StorageWriteErrors.Inc()
}

// RecordExport 记录一次 CSV 导出
func (m *Metrics) RecordExport(rows int) {
	m.ExportsTotal.Inc()
	m.ExportedRows.Add(float64(rows))
}

// RecordExportDenied 记录被授权拦截的导出
func (m *Metrics) RecordExportDenied() {
	m.ExportsDenied.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
