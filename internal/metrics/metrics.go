package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "review_insight"

const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	// ResultInsufficient 数据不足（软错误）
	ResultInsufficient = "insufficient"
)

// LLM 调用类型
const (
	KindAggregate = "aggregate"
	KindReview    = "review"
)

var (
	llmCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "llm_calls_total",
		Help:      "LLM calls by kind and result.",
	}, []string{"kind", "result"})

	analysisRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_runs_total",
		Help:      "Analyze operations by result.",
	}, []string{"result"})

	topicRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "topic_runs_total",
		Help:      "Topic discovery operations by result.",
	}, []string{"result"})

	topicFitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "topic_fit_seconds",
		Help:      "Time spent fitting the topic model and layout.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(llmCalls, analysisRuns, topicRuns, topicFitSeconds)
}

func result(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}

// ObserveLLMCall 记录一次 LLM 调用
func ObserveLLMCall(kind string, err error) {
	llmCalls.WithLabelValues(kind, result(err)).Inc()
}

func ObserveAnalysisRun(err error) {
	analysisRuns.WithLabelValues(result(err)).Inc()
}

// ObserveTopicRun soft 为 true 时记为 insufficient
func ObserveTopicRun(err error, soft bool) {
	if err != nil && soft {
		topicRuns.WithLabelValues(ResultInsufficient).Inc()
		return
	}
	topicRuns.WithLabelValues(result(err)).Inc()
}

func ObserveTopicFit(d time.Duration) {
	topicFitSeconds.Observe(d.Seconds())
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
