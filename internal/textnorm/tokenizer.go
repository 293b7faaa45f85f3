package textnorm

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/fachebot/review-insight/internal/config"
	"github.com/fachebot/review-insight/internal/logger"
)

// Tokenizer 将评论文本转为内容词（名词）序列
// 结果小写、按出现顺序、不去重；空白输入返回空序列
type Tokenizer interface {
	Normalize(text string) []string
	Name() string
}

var (
	selectOnce sync.Once
	selected   Tokenizer
)

// Select 进程内只探测一次标注器，之后始终返回同一个实现
func Select(c config.Tagger) Tokenizer {
	selectOnce.Do(func() {
		tagger, err := Probe(c)
		if err != nil {
			logger.Warnf("[Tokenizer] 词性标注器不可用，使用规则提取: %v", err)
			selected = NewRuleBased()
			return
		}
		logger.Infof("[Tokenizer] 使用词性标注器: %s", c.Command)
		selected = tagger
	})
	return selected
}

// Probe 检查标注器是否已安装且能完成一次标注
func Probe(c config.Tagger) (*TaggerBased, error) {
	if c.Command == "" {
		return nil, fmt.Errorf("未配置标注器命令")
	}
	if _, err := exec.LookPath(c.Command); err != nil {
		return nil, err
	}

	tagger := NewTaggerBased(c)
	ctx, cancel := context.WithTimeout(context.Background(), tagger.timeout)
	defer cancel()

	out, err := tagger.run(ctx, "테스트 문장")
	if err != nil {
		return nil, fmt.Errorf("试运行失败: %w", err)
	}
	if !strings.Contains(out, "EOS") {
		return nil, fmt.Errorf("标注器输出格式无法识别")
	}
	return tagger, nil
}
