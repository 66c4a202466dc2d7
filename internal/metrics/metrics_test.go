package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/tgstep/internal/generation"
)

func TestObserverCounts(t *testing.T) {
	obs := NewObserver(7)
	tokens := testutil.ToFloat64(GeneratedTokensTotal.WithLabelValues("7"))
	eos := testutil.ToFloat64(RequestsFinished.WithLabelValues("eos_token"))
	prefill := testutil.ToFloat64(PrefillTokensTotal)

	obs.ObserveStep(3, 2*time.Millisecond)
	obs.ObserveToken(&generation.Generation{
		PrefillTokens: &generation.PrefillTokens{TokenIDs: []int{1, 2, 3}},
	})
	obs.ObserveToken(&generation.Generation{
		GeneratedText: &generation.GeneratedText{FinishReason: generation.FinishReasonEOSToken, GeneratedTokens: 4},
	})

	assert.Equal(t, tokens+2, testutil.ToFloat64(GeneratedTokensTotal.WithLabelValues("7")))
	assert.Equal(t, eos+1, testutil.ToFloat64(RequestsFinished.WithLabelValues("eos_token")))
	assert.Equal(t, prefill+3, testutil.ToFloat64(PrefillTokensTotal))
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordError("test")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `tgstep_request_errors_total{kind="test"}`))
}
