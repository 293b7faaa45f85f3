package topic

import (
	"sort"
	"strings"
)

type vocabOptions struct {
	maxFeatures int
	minDocFreq  int
	maxDocRatio float64
}

// buildVocabulary 按文档频次过滤后，取总词频最高的 maxFeatures 个词
// 词频相同按字典序，最终索引按字典序分配
func buildVocabulary(docs [][]string, opts vocabOptions) map[string]int {
	termFreq := make(map[string]int)
	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]bool, len(doc))
		for _, term := range doc {
			termFreq[term]++
			if !seen[term] {
				seen[term] = true
				docFreq[term]++
			}
		}
	}

	maxDocs := int(opts.maxDocRatio * float64(len(docs)))
	if opts.maxDocRatio >= 1 {
		maxDocs = len(docs)
	}

	candidates := make([]string, 0, len(termFreq))
	for term, df := range docFreq {
		if df < opts.minDocFreq || df > maxDocs {
			continue
		}
		candidates = append(candidates, term)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if termFreq[a] != termFreq[b] {
			return termFreq[a] > termFreq[b]
		}
		return a < b
	})
	if opts.maxFeatures > 0 && len(candidates) > opts.maxFeatures {
		candidates = candidates[:opts.maxFeatures]
	}

	sort.Strings(candidates)
	vocab := make(map[string]int, len(candidates))
	for i, term := range candidates {
		vocab[term] = i
	}
	return vocab
}

// vocabularyTerms 按索引排列的词表
func vocabularyTerms(vocab map[string]int) []string {
	terms := make([]string, len(vocab))
	for term, i := range vocab {
		terms[i] = term
	}
	return terms
}

// tokenListTokeniser 语料已经分好词并以空格连接，这里只需按空白切分
type tokenListTokeniser struct{}

func (tokenListTokeniser) ForEachIn(input string, f func(token string)) {
	for _, token := range strings.Fields(input) {
		f(token)
	}
}

func (tokenListTokeniser) Tokenise(input string) []string {
	return strings.Fields(input)
}

// withBigrams n 为 2 时在单词后追加相邻词对，词对以下划线连接
func withBigrams(tokens []string, n int) []string {
	if n < 2 || len(tokens) < 2 {
		return tokens
	}
	out := make([]string, 0, 2*len(tokens)-1)
	out = append(out, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+"_"+tokens[i+1])
	}
	return out
}
