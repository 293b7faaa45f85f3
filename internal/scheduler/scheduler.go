package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fachebot/review-insight/internal/config"
	"github.com/fachebot/review-insight/internal/logger"
	"github.com/fachebot/review-insight/internal/model"
	"github.com/fachebot/review-insight/internal/pipeline"
	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
)

var errCancelled = errors.New("任务已取消")

type appLister interface {
	List(ctx context.Context) ([]*model.App, error)
}

type appAnalyzer interface {
	Analyze(ctx context.Context, appID string) (*pipeline.AnalyzeResponse, error)
}

type runStore interface {
	Create(ctx context.Context, runID, appID string, status model.AnalysisRunStatus) (*model.AnalysisRun, error)
	GetIncompleteRuns(ctx context.Context) ([]*model.AnalysisRun, error)
	MarkCompleted(ctx context.Context, runID string, succeeded, failed int) error
	MarkFailed(ctx context.Context, runID string, errorMsg string) error
}

// Scheduler 按 cron 定时重新分析所有应用，每个应用一条运行记录
type Scheduler struct {
	cron     *cron.Cron
	apps     appLister
	analyzer appAnalyzer
	runs     runStore
	config   *config.Schedule
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
}

// cron 表达式按 UTC 解释，与部署机器的时区无关
var locUTC = time.UTC

func NewScheduler(apps *model.AppModel, analyzer *pipeline.Pipeline, runs *model.AnalysisRunModel, cfg *config.Schedule) *Scheduler {
	return newScheduler(apps, analyzer, runs, cfg)
}

func newScheduler(apps appLister, analyzer appAnalyzer, runs runStore, cfg *config.Schedule) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(locUTC)),
		apps:     apps,
		analyzer: analyzer,
		runs:     runs,
		config:   cfg,
	}
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ctx := s.ctx
	s.mu.Unlock()

	_, err := s.cron.AddFunc(s.config.Cron, func() { s.runAll(ctx) })
	if err != nil {
		return fmt.Errorf("注册定时分析任务失败: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，定时分析任务: %s", s.config.Cron)

	// 启动时恢复未完成的运行
	go s.recoverRuns(ctx)

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	logger.Infof("[Scheduler] 调度器已停止")
}

// recoverRuns 重新执行上次退出时未完成的运行
func (s *Scheduler) recoverRuns(ctx context.Context) {
	runs, err := s.runs.GetIncompleteRuns(ctx)
	if err != nil {
		logger.Errorf("[Scheduler] 查询未完成运行失败: %v", err)
		return
	}
	if len(runs) == 0 {
		return
	}

	logger.Infof("[Scheduler] 找到 %d 个未完成的运行，开始恢复", len(runs))
	for _, run := range runs {
		if ctx.Err() != nil {
			logger.Infof("[Scheduler] 恢复已取消")
			return
		}
		logger.Infof("[Scheduler] 恢复运行 %s: app=%s", run.RunID, run.AppID)
		s.execute(ctx, run.RunID, run.AppID)
	}
	logger.Infof("[Scheduler] 未完成运行恢复完成")
}

// runAll 对所有应用执行一次重新分析（cron 触发）
func (s *Scheduler) runAll(ctx context.Context) {
	if ctx.Err() != nil {
		logger.Infof("[Scheduler] 任务已取消，退出")
		return
	}

	apps, err := s.apps.List(ctx)
	if err != nil {
		logger.Errorf("[Scheduler] 查询应用列表失败: %v", err)
		return
	}
	logger.Infof("[Scheduler] 开始定时分析，共 %d 个应用", len(apps))

	successCount, failCount := 0, 0
	for _, app := range apps {
		if ctx.Err() != nil {
			logger.Infof("[Scheduler] 任务已取消，已处理 %d 个应用", successCount+failCount)
			return
		}

		// 先创建运行记录，便于崩溃恢复
		runID := ulid.Make().String()
		if _, err := s.runs.Create(ctx, runID, app.AppID, model.RunStatusInProgress); err != nil {
			logger.Errorf("[Scheduler] 创建运行记录失败 (app=%s): %v", app.AppID, err)
			failCount++
			continue
		}

		if s.execute(ctx, runID, app.AppID) {
			successCount++
		} else {
			failCount++
		}
	}

	logger.Infof("[Scheduler] 定时分析完成: 成功 %d 个，失败 %d 个", successCount, failCount)
}

// execute 分析单个应用并更新运行记录，返回是否成功
func (s *Scheduler) execute(ctx context.Context, runID, appID string) bool {
	resp, err := s.analyzeWithRetry(ctx, appID)
	if err != nil {
		if errors.Is(err, errCancelled) {
			// 保持 in_progress，下次启动时恢复
			return false
		}
		logger.Errorf("[Scheduler] 应用 %s 分析失败: %v", appID, err)
		if markErr := s.runs.MarkFailed(ctx, runID, err.Error()); markErr != nil {
			logger.Errorf("[Scheduler] 更新运行记录失败 (run=%s): %v", runID, markErr)
		}
		return false
	}

	if err := s.runs.MarkCompleted(ctx, runID, resp.Analyzed, len(resp.Failed)); err != nil {
		logger.Errorf("[Scheduler] 更新运行记录失败 (run=%s): %v", runID, err)
	}
	return true
}

// analyzeWithRetry 带重试地分析应用；调用方可修正的错误（如没有评论）不重试
func (s *Scheduler) analyzeWithRetry(ctx context.Context, appID string) (*pipeline.AnalyzeResponse, error) {
	retryTimes := s.config.RetryTimes
	if retryTimes <= 0 {
		retryTimes = 1
	}
	retryInterval := time.Duration(s.config.RetryInterval) * time.Second

	var (
		resp *pipeline.AnalyzeResponse
		err  error
	)
	for attempt := 1; attempt <= retryTimes; attempt++ {
		if ctx.Err() != nil {
			return nil, errCancelled
		}

		resp, err = s.analyzer.Analyze(ctx, appID)
		if err == nil {
			logger.Infof("[Scheduler] 应用 %s 分析成功: 单条成功 %d 条，失败 %d 条", appID, resp.Analyzed, len(resp.Failed))
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, errCancelled
		}
		if pipeline.IsClientError(err) {
			return nil, err
		}

		logger.Warnf("[Scheduler] 应用 %s 分析失败 (第 %d/%d 次): %v", appID, attempt, retryTimes, err)
		if attempt < retryTimes {
			select {
			case <-ctx.Done():
				return nil, errCancelled
			case <-time.After(retryInterval):
			}
		}
	}
	return nil, fmt.Errorf("分析失败，已重试 %d 次: %w", retryTimes, err)
}
