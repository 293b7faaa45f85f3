package model

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"sort"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

var appColumns = []string{
	"app_id", "app_name", "rating", "review_count", "download_count",
	"overall_analysis", "create_time", "update_time",
}

type AppModel struct {
	drv *entsql.Driver
}

func NewAppModel(drv *entsql.Driver) *AppModel {
	return &AppModel{drv: drv}
}

func (m *AppModel) builder() *entsql.DialectBuilder {
	return entsql.Dialect(m.drv.Dialect())
}

func scanApp(rows *entsql.Rows) (*App, error) {
	var (
		app     App
		overall entsql.NullString
	)
	err := rows.Scan(
		&app.AppID, &app.AppName, &app.Rating, &app.ReviewCount, &app.DownloadCount,
		&overall, &app.CreateTime, &app.UpdateTime,
	)
	if err != nil {
		return nil, err
	}
	app.OverallAnalysis = overall.String
	return &app, nil
}

func queryApps(ctx context.Context, q dialect.ExecQuerier, query string, args []any) ([]*App, error) {
	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []*App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func (m *AppModel) get(ctx context.Context, q dialect.ExecQuerier, appID string) (*App, error) {
	b := m.builder()
	query, args := b.Select(appColumns...).
		From(b.Table(TableApps)).
		Where(entsql.EQ("app_id", appID)).
		Limit(1).
		Query()

	apps, err := queryApps(ctx, q, query, args)
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, ErrNotFound
	}
	return apps[0], nil
}

// Get 按包名查询应用
func (m *AppModel) Get(ctx context.Context, appID string) (*App, error) {
	return m.get(ctx, m.drv, appID)
}

// List 查询所有应用，按创建顺序
func (m *AppModel) List(ctx context.Context) ([]*App, error) {
	b := m.builder()
	query, args := b.Select(appColumns...).
		From(b.Table(TableApps)).
		OrderBy("create_time", "app_id").
		Query()
	return queryApps(ctx, m.drv, query, args)
}

// Create 创建应用及其评论；应用已存在时原样返回已有记录，created 为 false
func (m *AppModel) Create(ctx context.Context, data *AppData, reviews []ReviewData) (app *App, created bool, err error) {
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return nil, false, err
	}

	existing, err := m.get(ctx, tx, data.AppID)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if !IsNotFound(err) {
		return nil, false, rollback(tx, err)
	}

	now := time.Now().UTC()
	b := m.builder()
	query, args := b.Insert(TableApps).
		Columns("app_id", "app_name", "rating", "review_count", "download_count", "create_time", "update_time").
		Values(data.AppID, data.AppName, data.Rating, data.ReviewCount, data.DownloadCount, now, now).
		Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return nil, false, rollback(tx, fmt.Errorf("插入应用失败: %w", err))
	}

	if len(reviews) > 0 {
		insert := b.Insert(TableReviews).
			Columns("app_id", "rating", "review_content", "review_date", "create_time")
		for _, r := range reviews {
			insert.Values(data.AppID, r.Rating, r.Content, r.ReviewDate, now)
		}
		query, args = insert.Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return nil, false, rollback(tx, fmt.Errorf("插入评论失败: %w", err))
		}
	}

	app, err = m.get(ctx, tx, data.AppID)
	if err != nil {
		return nil, false, rollback(tx, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return app, true, nil
}

// SaveAnalysis 保存总体分析
func (m *AppModel) SaveAnalysis(ctx context.Context, appID string, overall string) error {
	return m.saveOverall(ctx, m.drv, appID, overall)
}

func (m *AppModel) saveOverall(ctx context.Context, q dialect.ExecQuerier, appID string, overall string) error {
	query, args := m.builder().Update(TableApps).
		Set("overall_analysis", overall).
		Set("update_time", time.Now().UTC()).
		Where(entsql.EQ("app_id", appID)).
		Query()

	var res stdsql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveAnalysisResults 在一个事务内批量写入总体分析和单条分析
// 不属于该应用的评论ID被忽略
func (m *AppModel) SaveAnalysisResults(ctx context.Context, appID string, overall string, perReview map[int64]string) error {
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return err
	}

	if err := m.saveOverall(ctx, tx, appID, overall); err != nil {
		return rollback(tx, fmt.Errorf("保存总体分析失败: %w", err))
	}

	ids := make([]int64, 0, len(perReview))
	for id := range perReview {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	b := m.builder()
	for _, id := range ids {
		query, args := b.Update(TableReviews).
			Set("individual_analysis", perReview[id]).
			Where(entsql.And(
				entsql.EQ("id", id),
				entsql.EQ("app_id", appID),
			)).
			Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			return rollback(tx, fmt.Errorf("保存评论 %d 的分析失败: %w", id, err))
		}
	}

	return tx.Commit()
}

// Delete 删除应用及其评论
func (m *AppModel) Delete(ctx context.Context, appID string) error {
	tx, err := m.drv.Tx(ctx)
	if err != nil {
		return err
	}

	b := m.builder()
	query, args := b.Delete(TableReviews).Where(entsql.EQ("app_id", appID)).Query()
	if err := tx.Exec(ctx, query, args, nil); err != nil {
		return rollback(tx, fmt.Errorf("删除评论失败: %w", err))
	}

	query, args = b.Delete(TableApps).Where(entsql.EQ("app_id", appID)).Query()
	var res stdsql.Result
	if err := tx.Exec(ctx, query, args, &res); err != nil {
		return rollback(tx, fmt.Errorf("删除应用失败: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return rollback(tx, err)
	}
	if affected == 0 {
		return rollback(tx, ErrNotFound)
	}
	return tx.Commit()
}
