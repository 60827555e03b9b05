package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Business metrics
	appointmentsBooked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointments_booked_total",
			Help: "Total number of appointments booked",
		},
		[]string{"source"},
	)

	appointmentsStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "appointments_status_changed_total",
			Help: "Total number of appointment status changes",
		},
		[]string{"from_status", "to_status"},
	)

	documentsUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "documents_uploaded_total",
			Help: "Total number of document uploads",
		},
		[]string{"category"},
	)

	reportsGenerated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reports_generated_total",
			Help: "Total number of dashboard reports generated",
		},
	)

	remindersSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminders_sent_total",
			Help: "Total number of appointment reminders sent",
		},
		[]string{"channel", "status"},
	)

	wizardSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_wizard_submissions_total",
			Help: "Total number of booking wizard submissions",
		},
		[]string{"outcome"},
	)

	hisRecordsImported = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "his_records_imported_total",
			Help: "Total number of records imported from the legacy HIS",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// AppointmentBooked records a booked appointment
func AppointmentBooked(source string) {
	appointmentsBooked.WithLabelValues(source).Inc()
}

// AppointmentStatusChanged records a status transition
func AppointmentStatusChanged(from, to string) {
	appointmentsStatusChanged.WithLabelValues(from, to).Inc()
}

// DocumentUploaded records a document upload
func DocumentUploaded(category string) {
	documentsUploaded.WithLabelValues(category).Inc()
}

// ReportGenerated records a dashboard report generation
func ReportGenerated() {
	reportsGenerated.Inc()
}

// ReminderSent records a reminder delivery attempt
func ReminderSent(channel, status string) {
	remindersSent.WithLabelValues(channel, status).Inc()
}

// WizardSubmission records a booking wizard submit outcome
func WizardSubmission(outcome string) {
	wizardSubmissions.WithLabelValues(outcome).Inc()
}

// HISRecordImported records one imported legacy record
func HISRecordImported() {
	hisRecordsImported.Inc()
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath collapses IDs so the path label cardinality stays bounded
func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if len(p) == 36 && strings.Count(p, "-") == 4 {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
