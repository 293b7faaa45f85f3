package model

import (
	"context"
	stdsql "database/sql"

	entsql "entgo.io/ent/dialect/sql"
)

var reviewColumns = []string{
	"id", "app_id", "rating", "review_content", "review_date", "individual_analysis", "create_time",
}

type ReviewModel struct {
	drv *entsql.Driver
}

func NewReviewModel(drv *entsql.Driver) *ReviewModel {
	return &ReviewModel{drv: drv}
}

// GetByApp 查询应用的全部评论，按入库顺序
func (m *ReviewModel) GetByApp(ctx context.Context, appID string) ([]*Review, error) {
	b := entsql.Dialect(m.drv.Dialect())
	query, args := b.Select(reviewColumns...).
		From(b.Table(TableReviews)).
		Where(entsql.EQ("app_id", appID)).
		OrderBy("id").
		Query()

	rows := &entsql.Rows{}
	if err := m.drv.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var reviews []*Review
	for rows.Next() {
		var (
			r        Review
			analysis entsql.NullString
		)
		if err := rows.Scan(&r.ID, &r.AppID, &r.Rating, &r.Content, &r.ReviewDate, &analysis, &r.CreateTime); err != nil {
			return nil, err
		}
		r.IndividualAnalysis = analysis.String
		reviews = append(reviews, &r)
	}
	return reviews, rows.Err()
}

// SaveAnalysis 保存单条评论的分析
func (m *ReviewModel) SaveAnalysis(ctx context.Context, reviewID int64, text string) error {
	query, args := entsql.Dialect(m.drv.Dialect()).Update(TableReviews).
		Set("individual_analysis", text).
		Where(entsql.EQ("id", reviewID)).
		Query()

	var res stdsql.Result
	if err := m.drv.Exec(ctx, query, args, &res); err != nil {
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
