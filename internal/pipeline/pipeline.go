package pipeline

import (
	"context"
	"errors"

	"github.com/fachebot/review-insight/internal/analyzer"
	"github.com/fachebot/review-insight/internal/apperr"
	"github.com/fachebot/review-insight/internal/logger"
	"github.com/fachebot/review-insight/internal/metrics"
	"github.com/fachebot/review-insight/internal/model"
	"github.com/fachebot/review-insight/internal/topic"
)

type appStore interface {
	Get(ctx context.Context, appID string) (*model.App, error)
	Delete(ctx context.Context, appID string) error
}

type reviewStore interface {
	GetByApp(ctx context.Context, appID string) ([]*model.Review, error)
}

type reviewAnalyzer interface {
	Analyze(ctx context.Context, app *model.App, reviews []*model.Review) (*analyzer.Result, error)
}

type topicDiscoverer interface {
	Discover(ctx context.Context, reviews []*model.Review, k int) (*topic.Report, error)
}

// AnalyzeResponse 分析后重新读取的应用和评论
type AnalyzeResponse struct {
	App      *model.App      `json:"app_info"`
	Reviews  []*model.Review `json:"reviews"`
	Analyzed int             `json:"analyzed"`
	Failed   []int64         `json:"failed,omitempty"`
}

// TopicResponse 主题发现结果
type TopicResponse struct {
	AppID   string `json:"app_id"`
	AppName string `json:"app_name"`
	K       int    `json:"k"`
	topic.Report
}

// Pipeline 对外暴露 analyze 和 discoverTopics 两个入口，同一应用的调用串行执行
type Pipeline struct {
	apps     appStore
	reviews  reviewStore
	analyzer reviewAnalyzer
	topics   topicDiscoverer
	defaultK int
	locks    *keyedMutex
}

func NewPipeline(apps *model.AppModel, reviews *model.ReviewModel, analyzer *analyzer.Analyzer, topics *topic.Engine, defaultK int) *Pipeline {
	return newPipeline(apps, reviews, analyzer, topics, defaultK)
}

func newPipeline(apps appStore, reviews reviewStore, analyzer reviewAnalyzer, topics topicDiscoverer, defaultK int) *Pipeline {
	return &Pipeline{
		apps:     apps,
		reviews:  reviews,
		analyzer: analyzer,
		topics:   topics,
		defaultK: defaultK,
		locks:    newKeyedMutex(),
	}
}

// Analyze 对应用的全部评论做 AI 分析并写回，返回写回后的应用和评论
func (p *Pipeline) Analyze(ctx context.Context, appID string) (resp *AnalyzeResponse, err error) {
	defer func() { metrics.ObserveAnalysisRun(err) }()

	unlock, err := p.locks.Lock(ctx, appID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	app, reviews, err := p.load(ctx, appID)
	if err != nil {
		return nil, err
	}

	result, err := p.analyzer.Analyze(ctx, app, reviews)
	if err != nil {
		return nil, err
	}

	app, reviews, err = p.load(ctx, appID)
	if err != nil {
		return nil, err
	}

	return &AnalyzeResponse{
		App:      app,
		Reviews:  reviews,
		Analyzed: len(result.PerReview),
		Failed:   result.Failed,
	}, nil
}

// DiscoverTopics 对应用评论做主题发现；k <= 0 时使用默认主题数
func (p *Pipeline) DiscoverTopics(ctx context.Context, appID string, k int) (resp *TopicResponse, err error) {
	defer func() { metrics.ObserveTopicRun(err, apperr.IsSoft(err)) }()

	if k <= 0 {
		k = p.defaultK
	}

	unlock, err := p.locks.Lock(ctx, appID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	app, reviews, err := p.load(ctx, appID)
	if err != nil {
		return nil, err
	}

	report, err := p.topics.Discover(ctx, reviews, k)
	if err != nil {
		if apperr.IsSoft(err) {
			logger.Infof("[Pipeline] 应用 %s 数据不足 (k=%d): %v", appID, k, err)
		}
		return nil, err
	}

	return &TopicResponse{
		AppID:   app.AppID,
		AppName: app.AppName,
		K:       k,
		Report:  *report,
	}, nil
}

// DeleteApp 删除应用及其评论
func (p *Pipeline) DeleteApp(ctx context.Context, appID string) error {
	unlock, err := p.locks.Lock(ctx, appID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := p.apps.Delete(ctx, appID); err != nil {
		if model.IsNotFound(err) {
			return apperr.AppNotFound(appID)
		}
		return apperr.Persistence(err, "删除应用 %s 失败", appID)
	}
	logger.Infof("[Pipeline] 已删除应用 %s", appID)
	return nil
}

// load 读取应用和评论，校验至少有一条评论
func (p *Pipeline) load(ctx context.Context, appID string) (*model.App, []*model.Review, error) {
	app, err := p.apps.Get(ctx, appID)
	if err != nil {
		if model.IsNotFound(err) {
			return nil, nil, apperr.AppNotFound(appID)
		}
		return nil, nil, apperr.Persistence(err, "读取应用 %s 失败", appID)
	}

	reviews, err := p.reviews.GetByApp(ctx, appID)
	if err != nil {
		return nil, nil, apperr.Persistence(err, "读取应用 %s 的评论失败", appID)
	}
	if len(reviews) == 0 {
		return nil, nil, apperr.NoReviews(appID)
	}
	return app, reviews, nil
}

// IsClientError 调用方可修正的错误（应用不存在、没有评论、数据不足）
func IsClientError(err error) bool {
	return errors.Is(err, apperr.ErrAppNotFound) ||
		errors.Is(err, apperr.ErrNoReviews) ||
		errors.Is(err, apperr.ErrInsufficientData)
}
