package topic

// Topic 主题及其关键词（权重从高到低）
type Topic struct {
	ID    int      `json:"topic_id"`
	Words []string `json:"top_words"`
}

// Assignment 单条评论的主题归属和二维坐标
type Assignment struct {
	ReviewID int64   `json:"review_id"`
	Topic    int     `json:"topic"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rating   int     `json:"rating"`
	Preview  string  `json:"preview"`
}

// Report 一次主题发现的结果，不持久化
type Report struct {
	Topics      []Topic      `json:"topics"`
	Assignments []Assignment `json:"tsne_data"`
	// ReviewCount 参与拟合的评论数
	ReviewCount int `json:"n_reviews"`
	// Excluded 分词后没有任何内容词而被排除的评论数
	Excluded int `json:"excluded"`
}
