package analyzer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fachebot/review-insight/internal/apperr"
	"github.com/fachebot/review-insight/internal/config"
	"github.com/fachebot/review-insight/internal/logger"
	"github.com/fachebot/review-insight/internal/metrics"
	"github.com/fachebot/review-insight/internal/model"
	"golang.org/x/sync/errgroup"
)

// Completer 调用 LLM 完成 prompt
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// AnalysisWriter 批量写回分析结果
type AnalysisWriter interface {
	SaveAnalysisResults(ctx context.Context, appID string, overall string, perReview map[int64]string) error
}

type Analyzer struct {
	llmClient Completer
	writer    AnalysisWriter
	config    config.Analysis
}

func NewAnalyzer(llmClient Completer, writer AnalysisWriter, cfg config.Analysis) *Analyzer {
	return &Analyzer{
		llmClient: llmClient,
		writer:    writer,
		config:    cfg,
	}
}

// Analyze 对应用做一次总体分析和逐条分析，全部调用结束后一次性写回
// 单条失败只记录日志并从结果中省略；总体分析失败则整体失败且不写入
func (a *Analyzer) Analyze(ctx context.Context, app *model.App, reviews []*model.Review) (*Result, error) {
	start := time.Now()
	logger.Infof("[Analyzer] 开始分析应用 %s，共 %d 条评论", app.AppID, len(reviews))

	concurrency := a.config.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var overall string
	prompt, included := buildOverallPrompt(app, reviews, a.config.MaxPromptChars)
	if included < len(reviews) {
		logger.Infof("[Analyzer] 应用 %s 的评论超出 prompt 预算，总体分析仅使用前 %d 条", app.AppID, included)
	}
	g.Go(func() error {
		text, err := a.llmClient.Complete(gctx, prompt)
		metrics.ObserveLLMCall(metrics.KindAggregate, err)
		if err != nil {
			return err
		}
		overall = text
		return nil
	})

	var (
		mu        sync.Mutex
		perReview = make(map[int64]string, len(reviews))
		failed    []int64
	)
	for _, r := range reviews {
		g.Go(func() error {
			if gctx.Err() != nil {
				mu.Lock()
				failed = append(failed, r.ID)
				mu.Unlock()
				return nil
			}

			text, err := a.llmClient.Complete(gctx, buildReviewPrompt(r))
			metrics.ObserveLLMCall(metrics.KindReview, err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				callErr := apperr.TransientCall(err, "评论 %d 分析失败", r.ID)
				logger.Warnf("[Analyzer] 应用 %s: %v", app.AppID, callErr)
				failed = append(failed, r.ID)
				return nil
			}
			perReview[r.ID] = text
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Errorf("[Analyzer] 应用 %s 总体分析失败: %v", app.AppID, err)
		return nil, apperr.AnalysisFailed(err, "应用 %s 的总体分析失败", app.AppID)
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })

	if err := a.writer.SaveAnalysisResults(ctx, app.AppID, overall, perReview); err != nil {
		logger.Errorf("[Analyzer] 应用 %s 保存分析结果失败: %v", app.AppID, err)
		return nil, apperr.Persistence(err, "保存应用 %s 的分析结果失败", app.AppID)
	}

	logger.Infof("[Analyzer] 应用 %s 分析完成: 单条成功 %d 条，失败 %d 条，耗时 %s",
		app.AppID, len(perReview), len(failed), time.Since(start))

	return &Result{
		OverallAnalysis: overall,
		PerReview:       perReview,
		Failed:          failed,
	}, nil
}
