package model

import "time"

// App 应用信息，拥有一组评论
type App struct {
	AppID           string    `json:"app_id"`
	AppName         string    `json:"app_name"`
	Rating          string    `json:"rating"`
	ReviewCount     string    `json:"review_count"`
	DownloadCount   string    `json:"download_count"`
	OverallAnalysis string    `json:"overall_analysis,omitempty"`
	CreateTime      time.Time `json:"create_time"`
	UpdateTime      time.Time `json:"update_time"`
}

// Review 单条评论；除 IndividualAnalysis 外抓取后不再修改
type Review struct {
	ID                 int64     `json:"id"`
	AppID              string    `json:"app_id"`
	Rating             int       `json:"rating"`
	Content            string    `json:"review_content"`
	ReviewDate         string    `json:"review_date"`
	IndividualAnalysis string    `json:"individual_analysis,omitempty"`
	CreateTime         time.Time `json:"create_time"`
}

// AnalysisRunStatus 运行状态
type AnalysisRunStatus string

const (
	RunStatusPending    AnalysisRunStatus = "pending"
	RunStatusInProgress AnalysisRunStatus = "in_progress"
	RunStatusCompleted  AnalysisRunStatus = "completed"
	RunStatusFailed     AnalysisRunStatus = "failed"
)

// AnalysisRun 一次定时重新分析的执行记录
type AnalysisRun struct {
	ID           int64             `json:"id"`
	RunID        string            `json:"run_id"`
	AppID        string            `json:"app_id"`
	Status       AnalysisRunStatus `json:"status"`
	Succeeded    int               `json:"succeeded"`
	Failed       int               `json:"failed"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreateTime   time.Time         `json:"create_time"`
	UpdateTime   time.Time         `json:"update_time"`
}

// AppData 新建应用的数据（爬虫输出）
type AppData struct {
	AppID         string `json:"app_id"`
	AppName       string `json:"app_name"`
	Rating        string `json:"rating"`
	ReviewCount   string `json:"review_count"`
	DownloadCount string `json:"download_count"`
}

// ReviewData 新建评论的数据（爬虫输出）
type ReviewData struct {
	Rating     int    `json:"rating"`
	Content    string `json:"review_content"`
	ReviewDate string `json:"review_date"`
}
