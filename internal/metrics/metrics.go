// Package metrics collects and exposes Prometheus metrics for the backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is what handlers record against.
type MetricsCollector interface {
	RecordRequest(route string, status int, duration time.Duration)
	RecordSignIn(outcome string)
	RecordChatStored()
	RecordMoodUpsert()
	RecordPostWrite(op string)
	RecordRateLimited(scope string)
}

// Collector is the Prometheus implementation.
type Collector struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	signIns     *prometheus.CounterVec
	chatsStored prometheus.Counter
	moodUpserts prometheus.Counter
	postWrites  *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_http_requests_total",
			Help: "HTTP requests by route pattern and status code",
		}, []string{"route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "companion_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_auth_sign_in_total",
			Help: "Password sign-in attempts by outcome",
		}, []string{"outcome"}),
		chatsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "companion_chat_messages_stored_total",
			Help: "Chat exchanges persisted",
		}),
		moodUpserts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "companion_mood_upserts_total",
			Help: "Mood entries written",
		}),
		postWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_blog_post_writes_total",
			Help: "Blog post writes by operation",
		}, []string{"op"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "companion_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		}, []string{"scope"}),
	}

	reg.MustRegister(
		c.requests,
		c.latency,
		c.signIns,
		c.chatsStored,
		c.moodUpserts,
		c.postWrites,
		c.rateLimited,
	)
	return c
}

func (c *Collector) RecordRequest(route string, status int, duration time.Duration) {
	c.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(route).Observe(duration.Seconds())
}

func (c *Collector) RecordSignIn(outcome string) {
	c.signIns.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordChatStored() {
	c.chatsStored.Inc()
}

func (c *Collector) RecordMoodUpsert() {
	c.moodUpserts.Inc()
}

func (c *Collector) RecordPostWrite(op string) {
	c.postWrites.WithLabelValues(op).Inc()
}

func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// Handler serves the registry for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards everything. Used by tests and when metrics are disabled.
type Nop struct{}

func (Nop) RecordRequest(string, int, time.Duration) {}
func (Nop) RecordSignIn(string)                      {}
func (Nop) RecordChatStored()                        {}
func (Nop) RecordMoodUpsert()                        {}
func (Nop) RecordPostWrite(string)                   {}
func (Nop) RecordRateLimited(string)                 {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
