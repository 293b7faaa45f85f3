package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveLLMCall(KindReview, errors.New("timeout"))
	ObserveLLMCall(KindAggregate, nil)
	ObserveAnalysisRun(nil)
	ObserveTopicRun(errors.New("insufficient"), true)
	ObserveTopicRun(errors.New("db down"), false)
	ObserveTopicFit(150 * time.Millisecond)

	body := scrape(t)
	for _, want := range []string{
		`review_insight_llm_calls_total{kind="review",result="failure"}`,
		`review_insight_llm_calls_total{kind="aggregate",result="success"}`,
		`review_insight_analysis_runs_total{result="success"}`,
		`review_insight_topic_runs_total{result="insufficient"}`,
		`review_insight_topic_runs_total{result="failure"}`,
		`review_insight_topic_fit_seconds_bucket`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestResult(t *testing.T) {
	assert.Equal(t, ResultSuccess, result(nil))
	assert.Equal(t, ResultFailure, result(errors.New("x")))
}
