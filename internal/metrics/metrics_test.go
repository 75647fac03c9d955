package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	rec := NewPrometheusRecorder()
	rec.ObserveChatStarted()
	rec.ObserveTransition("keyword", "wifi")
	rec.ObserveTransition("keyword", "wifi")
	rec.ObserveRejected("select_option", "option_not_offered")

	assert.Equal(t, 1.0, testutil.ToFloat64(rec.chats))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.transitions.WithLabelValues("keyword", "wifi")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.rejected.WithLabelValues("select_option", "option_not_offered")))
}

func TestRecordersAreIndependent(t *testing.T) {
	a := NewPrometheusRecorder()
	b := NewPrometheusRecorder()
	a.ObserveChatStarted()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.chats))
}

func TestHandlerExposesMetrics(t *testing.T) {
	rec := NewPrometheusRecorder()
	rec.ObserveTransition("escalate", "")

	srv := httptest.NewServer(rec.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `support_dialogue_transitions_total{kind="escalate",rule=""} 1`)
}
