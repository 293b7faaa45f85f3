package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fachebot/review-insight/internal/apperr"
	"github.com/fachebot/review-insight/internal/config"
	"github.com/fachebot/review-insight/internal/model"
	"github.com/fachebot/review-insight/internal/pipeline"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApps struct {
	apps []*model.App
	err  error
}

func (f *fakeApps) List(ctx context.Context) ([]*model.App, error) {
	return f.apps, f.err
}

// fakeAnalyzer 按应用ID返回预设的错误序列，序列用完后成功
type fakeAnalyzer struct {
	mu     sync.Mutex
	errs   map[string][]error
	calls  map[string]int
	cancel context.CancelFunc
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, appID string) (*pipeline.AnalyzeResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	n := f.calls[appID]
	f.calls[appID]++

	if f.cancel != nil {
		f.cancel()
		return nil, ctx.Err()
	}
	if errs := f.errs[appID]; n < len(errs) {
		return nil, errs[n]
	}
	return &pipeline.AnalyzeResponse{Analyzed: 4, Failed: []int64{9}}, nil
}

type fakeRuns struct {
	mu   sync.Mutex
	runs map[string]*model.AnalysisRun
	seq  int64
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[string]*model.AnalysisRun)}
}

func (f *fakeRuns) Create(ctx context.Context, runID, appID string, status model.AnalysisRunStatus) (*model.AnalysisRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	run := &model.AnalysisRun{ID: f.seq, RunID: runID, AppID: appID, Status: status}
	f.runs[runID] = run
	return run, nil
}

func (f *fakeRuns) GetIncompleteRuns(ctx context.Context) ([]*model.AnalysisRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var runs []*model.AnalysisRun
	for _, r := range f.runs {
		if r.Status == model.RunStatusPending || r.Status == model.RunStatusInProgress {
			runs = append(runs, r)
		}
	}
	return runs, nil
}

func (f *fakeRuns) MarkCompleted(ctx context.Context, runID string, succeeded, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.runs[runID]
	r.Status, r.Succeeded, r.Failed = model.RunStatusCompleted, succeeded, failed
	return nil
}

func (f *fakeRuns) MarkFailed(ctx context.Context, runID string, errorMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.runs[runID]
	r.Status, r.ErrorMessage = model.RunStatusFailed, errorMsg
	return nil
}

func (f *fakeRuns) byApp(appID string) []*model.AnalysisRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	var runs []*model.AnalysisRun
	for _, r := range f.runs {
		if r.AppID == appID {
			runs = append(runs, r)
		}
	}
	return runs
}

func testSchedule() *config.Schedule {
	return &config.Schedule{Enable: true, Cron: "0 3 * * *", RetryTimes: 3, RetryInterval: 0}
}

func TestRunAll_RecordsEachApp(t *testing.T) {
	apps := &fakeApps{apps: []*model.App{{AppID: "a"}, {AppID: "b"}, {AppID: "c"}}}
	analyzer := &fakeAnalyzer{errs: map[string][]error{
		"b": {apperr.NoReviews("b")},
		"c": {apperr.Persistence(errors.New("locked"), "读取失败")},
	}}
	runs := newFakeRuns()

	s := newScheduler(apps, analyzer, runs, testSchedule())
	s.runAll(context.Background())

	a := runs.byApp("a")
	require.Len(t, a, 1)
	assert.Equal(t, model.RunStatusCompleted, a[0].Status)
	assert.Equal(t, 4, a[0].Succeeded)
	assert.Equal(t, 1, a[0].Failed)
	_, err := ulid.ParseStrict(a[0].RunID)
	assert.NoError(t, err)

	b := runs.byApp("b")
	require.Len(t, b, 1)
	assert.Equal(t, model.RunStatusFailed, b[0].Status)
	assert.Equal(t, 1, analyzer.calls["b"], "没有评论不重试")

	c := runs.byApp("c")
	require.Len(t, c, 1)
	assert.Equal(t, model.RunStatusCompleted, c[0].Status, "一次持久化失败后重试成功")
	assert.Equal(t, 2, analyzer.calls["c"])
}

func TestRunAll_RetriesExhausted(t *testing.T) {
	boom := apperr.AnalysisFailed(errors.New("quota exceeded"), "总体分析失败")
	apps := &fakeApps{apps: []*model.App{{AppID: "a"}}}
	analyzer := &fakeAnalyzer{errs: map[string][]error{"a": {boom, boom, boom, boom}}}
	runs := newFakeRuns()

	s := newScheduler(apps, analyzer, runs, testSchedule())
	s.runAll(context.Background())

	a := runs.byApp("a")
	require.Len(t, a, 1)
	assert.Equal(t, model.RunStatusFailed, a[0].Status)
	assert.Contains(t, a[0].ErrorMessage, "quota exceeded")
	assert.Equal(t, 3, analyzer.calls["a"])
}

func TestRunAll_ListFailure(t *testing.T) {
	runs := newFakeRuns()
	s := newScheduler(&fakeApps{err: errors.New("db down")}, &fakeAnalyzer{}, runs, testSchedule())
	s.runAll(context.Background())
	assert.Empty(t, runs.runs)
}

func TestRunAll_CancelledKeepsRunInProgress(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	apps := &fakeApps{apps: []*model.App{{AppID: "a"}, {AppID: "b"}}}
	analyzer := &fakeAnalyzer{cancel: cancel}
	runs := newFakeRuns()

	s := newScheduler(apps, analyzer, runs, testSchedule())
	s.runAll(ctx)

	a := runs.byApp("a")
	require.Len(t, a, 1)
	assert.Equal(t, model.RunStatusInProgress, a[0].Status)
	assert.Empty(t, runs.byApp("b"))
}

func TestRecoverRuns(t *testing.T) {
	runs := newFakeRuns()
	_, err := runs.Create(context.Background(), "01HZX0000000000000000000AA", "a", model.RunStatusInProgress)
	require.NoError(t, err)
	_, err = runs.Create(context.Background(), "01HZX0000000000000000000BB", "b", model.RunStatusCompleted)
	require.NoError(t, err)

	analyzer := &fakeAnalyzer{}
	s := newScheduler(&fakeApps{}, analyzer, runs, testSchedule())
	s.recoverRuns(context.Background())

	assert.Equal(t, 1, analyzer.calls["a"])
	assert.Zero(t, analyzer.calls["b"], "已完成的运行不恢复")
	assert.Equal(t, model.RunStatusCompleted, runs.runs["01HZX0000000000000000000AA"].Status)
}

func TestStartStop(t *testing.T) {
	s := newScheduler(&fakeApps{}, &fakeAnalyzer{}, newFakeRuns(), testSchedule())
	require.NoError(t, s.Start())
	s.Stop()

	bad := newScheduler(&fakeApps{}, &fakeAnalyzer{}, newFakeRuns(), &config.Schedule{Cron: "not a cron"})
	assert.Error(t, bad.Start())
	bad.Stop()
}
