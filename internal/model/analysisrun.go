package model

import (
	"context"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

var analysisRunColumns = []string{
	"id", "run_id", "app_id", "status", "succeeded", "failed", "error_message", "create_time", "update_time",
}

type AnalysisRunModel struct {
	drv *entsql.Driver
}

func NewAnalysisRunModel(drv *entsql.Driver) *AnalysisRunModel {
	return &AnalysisRunModel{drv: drv}
}

func (m *AnalysisRunModel) builder() *entsql.DialectBuilder {
	return entsql.Dialect(m.drv.Dialect())
}

func (m *AnalysisRunModel) query(ctx context.Context, where *entsql.Predicate, order string) ([]*AnalysisRun, error) {
	b := m.builder()
	selector := b.Select(analysisRunColumns...).From(b.Table(TableAnalysisRuns)).Where(where)
	if order != "" {
		selector.OrderBy(order)
	}
	query, args := selector.Query()

	rows := &entsql.Rows{}
	if err := m.drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*AnalysisRun
	for rows.Next() {
		var (
			run    AnalysisRun
			status string
			errMsg entsql.NullString
		)
		err := rows.Scan(&run.ID, &run.RunID, &run.AppID, &status, &run.Succeeded, &run.Failed, &errMsg, &run.CreateTime, &run.UpdateTime)
		if err != nil {
			return nil, err
		}
		run.Status = AnalysisRunStatus(status)
		run.ErrorMessage = errMsg.String
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// Create 创建运行记录
func (m *AnalysisRunModel) Create(ctx context.Context, runID, appID string, status AnalysisRunStatus) (*AnalysisRun, error) {
	now := time.Now().UTC()
	query, args := m.builder().Insert(TableAnalysisRuns).
		Columns("run_id", "app_id", "status", "succeeded", "failed", "create_time", "update_time").
		Values(runID, appID, string(status), 0, 0, now, now).
		Query()
	if err := m.drv.Exec(ctx, query, args, nil); err != nil {
		return nil, err
	}
	return m.Get(ctx, runID)
}

// Get 按运行ID查询
func (m *AnalysisRunModel) Get(ctx context.Context, runID string) (*AnalysisRun, error) {
	runs, err := m.query(ctx, entsql.EQ("run_id", runID), "")
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

// GetIncompleteRuns 查询所有未完成的运行（pending 或 in_progress）
func (m *AnalysisRunModel) GetIncompleteRuns(ctx context.Context) ([]*AnalysisRun, error) {
	return m.query(ctx, entsql.Or(
		entsql.EQ("status", string(RunStatusPending)),
		entsql.EQ("status", string(RunStatusInProgress)),
	), "id")
}

// LatestByApp 查询应用最近一次运行
func (m *AnalysisRunModel) LatestByApp(ctx context.Context, appID string) (*AnalysisRun, error) {
	runs, err := m.query(ctx, entsql.EQ("app_id", appID), entsql.Desc("id"))
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

// MarkCompleted 标记运行完成并记录单条分析成功/失败数
func (m *AnalysisRunModel) MarkCompleted(ctx context.Context, runID string, succeeded, failed int) error {
	query, args := m.builder().Update(TableAnalysisRuns).
		Set("status", string(RunStatusCompleted)).
		Set("succeeded", succeeded).
		Set("failed", failed).
		Set("update_time", time.Now().UTC()).
		Where(entsql.EQ("run_id", runID)).
		Query()
	return m.drv.Exec(ctx, query, args, nil)
}

// MarkFailed 标记运行失败
func (m *AnalysisRunModel) MarkFailed(ctx context.Context, runID string, errorMsg string) error {
	query, args := m.builder().Update(TableAnalysisRuns).
		Set("status", string(RunStatusFailed)).
		Set("error_message", errorMsg).
		Set("update_time", time.Now().UTC()).
		Where(entsql.EQ("run_id", runID)).
		Query()
	return m.drv.Exec(ctx, query, args, nil)
}
