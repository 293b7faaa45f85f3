package textnorm

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fachebot/review-insight/internal/config"
	"github.com/fachebot/review-insight/internal/logger"
)

// 一般名词和专有名词
var nounTags = map[string]bool{
	"NNG": true,
	"NNP": true,
}

// runFunc 执行一次标注，返回标注器原始输出
type runFunc func(ctx context.Context, input string) (string, error)

// TaggerBased 调用外部词性标注器（mecab-ko）提取名词
// 单次调用失败时该条文本退回规则提取，不影响后续调用
type TaggerBased struct {
	command  string
	timeout  time.Duration
	run      runFunc
	fallback *RuleBased
}

func NewTaggerBased(c config.Tagger) *TaggerBased {
	timeout := time.Duration(c.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TaggerBased{
		command:  c.Command,
		timeout:  timeout,
		run:      execRunner(c.Command, c.Args),
		fallback: NewRuleBased(),
	}
}

func (t *TaggerBased) Name() string {
	return "tagger:" + t.command
}

func (t *TaggerBased) Normalize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	out, err := t.run(ctx, singleLine(text))
	if err != nil {
		logger.Warnf("[Tokenizer] 词性标注失败，本条使用规则提取: %v", err)
		return t.fallback.Normalize(text)
	}
	return parseTaggerOutput(out)
}

// parseTaggerOutput 解析 mecab 输出，每行 "表层形\t词性,..."，以 EOS 结束
func parseTaggerOutput(out string) []string {
	var tokens []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "EOS" {
			break
		}
		surface, features, ok := strings.Cut(line, "\t")
		if !ok || surface == "" {
			continue
		}
		tag, _, _ := strings.Cut(features, ",")
		if !nounTags[tag] {
			continue
		}
		if utf8.RuneCountInString(surface) < minTokenRunes {
			continue
		}
		tokens = append(tokens, strings.ToLower(surface))
	}
	return tokens
}

// singleLine mecab 按行处理输入，换行会产生多个 EOS
func singleLine(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func execRunner(command string, args []string) runFunc {
	return func(ctx context.Context, input string) (string, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Stdin = strings.NewReader(input + "\n")

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("%s: %w: %s", command, err, strings.TrimSpace(stderr.String()))
		}
		return stdout.String(), nil
	}
}
