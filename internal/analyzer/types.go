package analyzer

// Result 一次分析的结果
type Result struct {
	// OverallAnalysis 总体分析，LLM 原文
	OverallAnalysis string `json:"overall_analysis"`
	// PerReview 成功的单条分析，按评论ID索引；失败的评论不出现
	PerReview map[int64]string `json:"per_review"`
	// Failed 单条分析失败的评论ID，升序
	Failed []int64 `json:"failed,omitempty"`
}
