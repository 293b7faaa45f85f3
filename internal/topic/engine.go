package topic

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fachebot/review-insight/internal/apperr"
	"github.com/fachebot/review-insight/internal/config"
	"github.com/fachebot/review-insight/internal/layout"
	"github.com/fachebot/review-insight/internal/logger"
	"github.com/fachebot/review-insight/internal/metrics"
	"github.com/fachebot/review-insight/internal/model"
	"github.com/fachebot/review-insight/internal/textnorm"
	"github.com/james-bowman/nlp"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

const previewSuffix = "..."

// projector 二维投影，便于测试替换
type projector interface {
	Project(ctx context.Context, data mat.Matrix) ([]layout.Point, error)
}

// Engine 主题发现：分词、向量化、LDA 拟合、关键词和归属、二维投影
// 所有中间状态都在单次调用内创建，调用之间不共享
type Engine struct {
	cfg       config.Topic
	tokenizer textnorm.Tokenizer
	projector projector
}

func NewEngine(cfg config.Topic, tokenizer textnorm.Tokenizer, projector projector) *Engine {
	return &Engine{
		cfg:       cfg,
		tokenizer: tokenizer,
		projector: projector,
	}
}

// usableReview 分词后至少有一个内容词的评论
type usableReview struct {
	review *model.Review
	tokens []string
}

// Discover 对评论集合拟合 k 个主题
func (e *Engine) Discover(ctx context.Context, reviews []*model.Review, k int) (*Report, error) {
	if k < 1 {
		return nil, apperr.InsufficientData("主题数必须大于 0，当前为 %d", k)
	}

	usable := make([]usableReview, 0, len(reviews))
	for _, r := range reviews {
		tokens := e.tokenizer.Normalize(r.Content)
		if len(tokens) == 0 {
			continue
		}
		usable = append(usable, usableReview{review: r, tokens: tokens})
	}
	excluded := len(reviews) - len(usable)
	if len(usable) < k {
		return nil, apperr.InsufficientData("可分析的评论数 %d 少于主题数 %d", len(usable), k)
	}

	docs := make([][]string, len(usable))
	for i, u := range usable {
		docs[i] = withBigrams(u.tokens, e.cfg.NGramMax)
	}
	vocab := buildVocabulary(docs, vocabOptions{
		maxFeatures: e.cfg.MaxFeatures,
		minDocFreq:  e.cfg.MinDocFreq,
		maxDocRatio: e.cfg.MaxDocRatio,
	})
	if len(vocab) == 0 {
		return nil, apperr.InsufficientData("过滤后词表为空，无法拟合主题")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	docsOverTopics, topicsOverWords, err := e.fit(docs, vocab, k)
	if err != nil {
		return nil, fmt.Errorf("拟合主题模型失败: %w", err)
	}

	// 投影输入为每行一个文档的主题分布
	points, err := e.projector.Project(ctx, docsOverTopics.T())
	if err != nil {
		return nil, err
	}
	metrics.ObserveTopicFit(time.Since(start))

	report := &Report{
		Topics:      topTopics(topicsOverWords, vocabularyTerms(vocab), e.topWords()),
		Assignments: make([]Assignment, len(usable)),
		ReviewCount: len(usable),
		Excluded:    excluded,
	}
	for d, u := range usable {
		report.Assignments[d] = Assignment{
			ReviewID: u.review.ID,
			Topic:    dominantTopic(docsOverTopics, d),
			X:        points[d].X,
			Y:        points[d].Y,
			Rating:   u.review.Rating,
			Preview:  Preview(u.review.Content, e.cfg.PreviewLength),
		}
	}

	logger.Debugf("[Topic] 拟合完成, 评论数: %d, 排除: %d, 词表: %d, 主题数: %d, 耗时: %s",
		len(usable), excluded, len(vocab), k, time.Since(start))
	return report, nil
}

// fit 返回 K×D 的文档主题分布和 K×W 的主题词分布
func (e *Engine) fit(docs [][]string, vocab map[string]int, k int) (mat.Matrix, mat.Matrix, error) {
	corpus := make([]string, len(docs))
	for i, doc := range docs {
		corpus[i] = strings.Join(doc, " ")
	}

	vectoriser := nlp.NewCountVectoriser()
	vectoriser.Tokeniser = tokenListTokeniser{}
	vectoriser.Vocabulary = vocab

	matrix, err := vectoriser.Transform(corpus...)
	if err != nil {
		return nil, nil, err
	}
	if e.cfg.Weighting == "tfidf" {
		matrix, err = nlp.NewTfidfTransformer().FitTransform(matrix)
		if err != nil {
			return nil, nil, err
		}
	}

	// 稀疏矩阵的非零元素按 map 顺序遍历，浮点累加顺序随之变化，转为稠密矩阵固定遍历顺序
	dense := mat.DenseCopyOf(matrix)

	lda := nlp.NewLatentDirichletAllocation(k)
	if e.cfg.Iterations > 0 {
		lda.Iterations = e.cfg.Iterations
		lda.TransformationPasses = max(e.cfg.Iterations/2, 1)
	}
	// 单进程保证相同种子得到相同结果
	lda.Processes = 1
	lda.Rnd = rand.New(rand.NewSource(e.cfg.Seed))

	docsOverTopics, err := lda.FitTransform(dense)
	if err != nil {
		return nil, nil, err
	}
	return docsOverTopics, lda.Components(), nil
}

func (e *Engine) topWords() int {
	if e.cfg.TopWords > 0 {
		return e.cfg.TopWords
	}
	return 10
}

// topTopics 每个主题取权重最高的 n 个词，权重相同按字典序
func topTopics(topicsOverWords mat.Matrix, terms []string, n int) []Topic {
	k, w := topicsOverWords.Dims()
	n = min(n, w)

	topics := make([]Topic, k)
	for t := 0; t < k; t++ {
		idx := make([]int, w)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			wa, wb := topicsOverWords.At(t, idx[a]), topicsOverWords.At(t, idx[b])
			if wa != wb {
				return wa > wb
			}
			return terms[idx[a]] < terms[idx[b]]
		})

		words := make([]string, n)
		for i := 0; i < n; i++ {
			words[i] = terms[idx[i]]
		}
		topics[t] = Topic{ID: t, Words: words}
	}
	return topics
}

// dominantTopic 概率最大的主题，相同时取编号最小的
func dominantTopic(docsOverTopics mat.Matrix, doc int) int {
	k, _ := docsOverTopics.Dims()
	best := 0
	for t := 1; t < k; t++ {
		if docsOverTopics.At(t, doc) > docsOverTopics.At(best, doc) {
			best = t
		}
	}
	return best
}

// Preview 按字符截断评论内容，截断时追加省略号
func Preview(content string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(content) <= maxRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxRunes]) + previewSuffix
}
