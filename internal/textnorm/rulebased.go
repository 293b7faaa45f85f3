package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const minTokenRunes = 2

// RuleBased 基于规则的名词提取：按非字母数字切分，去除助词、短词、纯数字和停用词
type RuleBased struct {
	stopwords map[string]struct{}
}

func NewRuleBased() *RuleBased {
	return &RuleBased{stopwords: stopwordSet(defaultStopwords)}
}

func (t *RuleBased) Name() string {
	return "rule-based"
}

func (t *RuleBased) Normalize(text string) []string {
	var (
		tokens  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() == 0 {
			return
		}
		if word := t.processToken(current.String()); word != "" {
			tokens = append(tokens, word)
		}
		current.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			current.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()

	return tokens
}

func (t *RuleBased) processToken(word string) string {
	word = stripParticle(word)
	if utf8.RuneCountInString(word) < minTokenRunes {
		return ""
	}
	if isNumericOnly(word) {
		return ""
	}
	if _, ok := t.stopwords[word]; ok {
		return ""
	}
	return word
}

// stripParticle 去掉韩语词尾助词，剩余部分不足 2 个字符时保持原样
func stripParticle(word string) string {
	if !endsWithHangul(word) {
		return word
	}
	for _, p := range koreanParticles {
		if !strings.HasSuffix(word, p) {
			continue
		}
		stem := strings.TrimSuffix(word, p)
		if utf8.RuneCountInString(stem) >= minTokenRunes {
			return stem
		}
		return word
	}
	return word
}

func endsWithHangul(word string) bool {
	r, _ := utf8.DecodeLastRuneInString(word)
	return unicode.Is(unicode.Hangul, r)
}

func isNumericOnly(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
