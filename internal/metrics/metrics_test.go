package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestHandler_ServesRecordedMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRequest("/rest/v1/mood_entries", http.StatusOK, 20*time.Millisecond)
	c.RecordSignIn("invalid_credentials")
	c.RecordChatStored()
	c.RecordMoodUpsert()
	c.RecordPostWrite("create")
	c.RecordRateLimited("auth")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, name := range []string{
		"companion_http_requests_total",
		"companion_auth_sign_in_total",
		"companion_chat_messages_stored_total",
		"companion_mood_upserts_total",
		"companion_blog_post_writes_total",
		"companion_rate_limited_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Errorf("response should contain %s", name)
		}
	}
}

func TestNewCollector_PanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	defer func() {
		if recover() == nil {
			t.Error("registering twice on one registry should panic")
		}
	}()
	NewCollector(reg)
}
