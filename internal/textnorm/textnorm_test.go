package textnorm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fachebot/review-insight/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleBased_Normalize(t *testing.T) {
	tok := NewRuleBased()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"空字符串", "", nil},
		{"纯空白", "   \t\n ", nil},
		{"英文小写并去停用词", "Great App, love it!", []string{"great", "app", "love"}},
		{"保留出现顺序和重复", "ads ads everywhere ads", []string{"ads", "ads", "everywhere", "ads"}},
		{"丢弃单字符和纯数字", "a 5 stars 2024 x", []string{"stars"}},
		{"保留字母数字混合", "python3 v2", []string{"python3", "v2"}},
		{"韩语助词剥离", "배송이 빠르고 화면을 서비스에서", []string{"배송", "빠르고", "화면", "서비스"}},
		{"词干不足两个字时保留原词", "앱이 정말 좋아요", []string{"앱이", "좋아요"}},
		{"韩语停用词", "그리고 너무 업데이트", []string{"업데이트"}},
		{"标点切分", "광고가...너무/많음", []string{"광고", "많음"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tok.Normalize(tt.text))
		})
	}
}

func TestRuleBased_Deterministic(t *testing.T) {
	tok := NewRuleBased()
	text := "업데이트 이후 로그인이 안돼요. Login fails after update!"
	first := tok.Normalize(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, tok.Normalize(text))
	}
}

func TestParseTaggerOutput(t *testing.T) {
	out := "배송\tNNG,*,T,배송,*,*,*,*\n" +
		"이\tJKS,*,F,이,*,*,*,*\n" +
		"빠르\tVA,*,F,빠르,*,*,*,*\n" +
		"고\tEC,*,F,고,*,*,*,*\n" +
		"쿠팡\tNNP,*,T,쿠팡,*,*,*,*\n" +
		"앱\tNNG,*,T,앱,*,*,*,*\n" +
		"EOS\n" +
		"무시\tNNG,*,F,무시,*,*,*,*\n"

	assert.Equal(t, []string{"배송", "쿠팡"}, parseTaggerOutput(out))
}

func TestParseTaggerOutput_Empty(t *testing.T) {
	assert.Empty(t, parseTaggerOutput(""))
	assert.Empty(t, parseTaggerOutput("EOS\n"))
	assert.Empty(t, parseTaggerOutput("garbage line without tab\nEOS\n"))
}

func newTestTagger(run runFunc) *TaggerBased {
	return &TaggerBased{
		command:  "mecab",
		timeout:  time.Second,
		run:      run,
		fallback: NewRuleBased(),
	}
}

func TestTaggerBased_Normalize(t *testing.T) {
	var gotInput string
	tagger := newTestTagger(func(ctx context.Context, input string) (string, error) {
		gotInput = input
		return "결제\tNNG,*,F,결제,*,*,*,*\n오류\tNNG,*,F,오류,*,*,*,*\nEOS\n", nil
	})

	tokens := tagger.Normalize("결제\n오류가   나요")
	assert.Equal(t, []string{"결제", "오류"}, tokens)
	assert.Equal(t, "결제 오류가 나요", gotInput, "输入应合并为单行")
}

func TestTaggerBased_EmptyInputSkipsTagger(t *testing.T) {
	called := false
	tagger := newTestTagger(func(ctx context.Context, input string) (string, error) {
		called = true
		return "", nil
	})

	assert.Empty(t, tagger.Normalize("   "))
	assert.False(t, called)
}

func TestTaggerBased_CallFailureFallsBack(t *testing.T) {
	tagger := newTestTagger(func(ctx context.Context, input string) (string, error) {
		return "", errors.New("signal: killed")
	})

	assert.Equal(t, []string{"배송", "빠르고"}, tagger.Normalize("배송이 빠르고"))
}

func TestProbe_MissingCommand(t *testing.T) {
	_, err := Probe(config.Tagger{Command: "definitely-not-a-real-tagger-binary"})
	assert.Error(t, err)

	_, err = Probe(config.Tagger{})
	assert.Error(t, err)
}

func TestSelect_CachedOnce(t *testing.T) {
	first := Select(config.Tagger{Command: "definitely-not-a-real-tagger-binary"})
	require.NotNil(t, first)
	second := Select(config.Tagger{Command: "mecab"})
	assert.Same(t, first, second, "选择结果在进程内只计算一次")
}
