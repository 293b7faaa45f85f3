package model

import (
	"context"
	"errors"
	"fmt"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	TableApps         = "apps"
	TableReviews      = "reviews"
	TableAnalysisRuns = "analysis_runs"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

var (
	// AppsColumns holds the columns for the "apps" table.
	AppsColumns = []*schema.Column{
		{Name: "app_id", Type: field.TypeString, Unique: true, Comment: "应用包名"},
		{Name: "app_name", Type: field.TypeString, Comment: "应用名称"},
		{Name: "rating", Type: field.TypeString, Default: "", Comment: "应用评分"},
		{Name: "review_count", Type: field.TypeString, Default: "", Comment: "评论数"},
		{Name: "download_count", Type: field.TypeString, Default: "", Comment: "下载量"},
		{Name: "overall_analysis", Type: field.TypeString, Size: 2147483647, Nullable: true, Comment: "总体分析"},
		{Name: "create_time", Type: field.TypeTime},
		{Name: "update_time", Type: field.TypeTime},
	}
	// AppsTable holds the schema information for the "apps" table.
	AppsTable = &schema.Table{
		Name:       TableApps,
		Columns:    AppsColumns,
		PrimaryKey: []*schema.Column{AppsColumns[0]},
	}

	// ReviewsColumns holds the columns for the "reviews" table.
	ReviewsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "rating", Type: field.TypeInt, Comment: "评分 1-5"},
		{Name: "review_content", Type: field.TypeString, Size: 2147483647, Comment: "评论内容"},
		{Name: "review_date", Type: field.TypeString, Default: "", Comment: "评论日期"},
		{Name: "individual_analysis", Type: field.TypeString, Size: 2147483647, Nullable: true, Comment: "单条分析"},
		{Name: "create_time", Type: field.TypeTime},
		{Name: "app_id", Type: field.TypeString},
	}
	// ReviewsTable holds the schema information for the "reviews" table.
	ReviewsTable = &schema.Table{
		Name:       TableReviews,
		Columns:    ReviewsColumns,
		PrimaryKey: []*schema.Column{ReviewsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "reviews_apps_reviews",
				Columns:    []*schema.Column{ReviewsColumns[6]},
				RefColumns: []*schema.Column{AppsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "review_app_id",
				Unique:  false,
				Columns: []*schema.Column{ReviewsColumns[6]},
			},
		},
	}

	// AnalysisRunsColumns holds the columns for the "analysis_runs" table.
	AnalysisRunsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt64, Increment: true},
		{Name: "run_id", Type: field.TypeString, Unique: true, Comment: "运行ID (ULID)"},
		{Name: "app_id", Type: field.TypeString},
		{Name: "status", Type: field.TypeEnum, Enums: []string{"pending", "in_progress", "completed", "failed"}, Default: "in_progress"},
		{Name: "succeeded", Type: field.TypeInt, Default: 0, Comment: "单条分析成功数"},
		{Name: "failed", Type: field.TypeInt, Default: 0, Comment: "单条分析失败数"},
		{Name: "error_message", Type: field.TypeString, Nullable: true},
		{Name: "create_time", Type: field.TypeTime},
		{Name: "update_time", Type: field.TypeTime},
	}
	// AnalysisRunsTable holds the schema information for the "analysis_runs" table.
	AnalysisRunsTable = &schema.Table{
		Name:       TableAnalysisRuns,
		Columns:    AnalysisRunsColumns,
		PrimaryKey: []*schema.Column{AnalysisRunsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "analysisrun_status",
				Unique:  false,
				Columns: []*schema.Column{AnalysisRunsColumns[3]},
			},
			{
				Name:    "analysisrun_app_id",
				Unique:  false,
				Columns: []*schema.Column{AnalysisRunsColumns[2]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		AppsTable,
		ReviewsTable,
		AnalysisRunsTable,
	}
)

func init() {
	ReviewsTable.ForeignKeys[0].RefTable = AppsTable
}

// Open 打开数据库连接，driver 为 "sqlite3" 或 "postgres"
func Open(driver, dsn string) (*entsql.Driver, error) {
	switch driver {
	case dialect.SQLite, dialect.Postgres:
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", driver)
	}
	return entsql.Open(driver, dsn)
}

// Migrate 创建或更新表结构
func Migrate(ctx context.Context, drv dialect.Driver) error {
	migrate, err := schema.NewMigrate(drv, schema.WithForeignKeys(true))
	if err != nil {
		return fmt.Errorf("创建迁移器失败: %w", err)
	}
	return migrate.Create(ctx, Tables...)
}

// rollback 回滚事务并合并错误
func rollback(tx dialect.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: 回滚失败: %v", err, rerr)
	}
	return err
}
