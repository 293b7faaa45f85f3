package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	cause := errors.New("disk full")
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"无评论", NoReviews("com.example.app"), ErrNoReviews},
		{"应用不存在", AppNotFound("com.example.app"), ErrAppNotFound},
		{"数据不足", InsufficientData("可用评论 %d 条", 1), ErrInsufficientData},
		{"总体分析失败", AnalysisFailed(cause, "总体分析失败"), ErrAnalysisFailed},
		{"单条调用失败", TransientCall(cause, "评论 %d 分析失败", 7), ErrTransientCall},
		{"持久化失败", Persistence(cause, "保存失败"), ErrPersistence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.kind))
			wrapped := fmt.Errorf("外层: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.kind))
		})
	}
}

func TestError_CauseIsReachable(t *testing.T) {
	cause := errors.New("timeout")
	err := AnalysisFailed(cause, "总体分析失败")
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "总体分析失败: timeout", err.Error())
}

func TestIsSoft(t *testing.T) {
	assert.True(t, IsSoft(InsufficientData("不足")))
	assert.True(t, IsSoft(fmt.Errorf("wrap: %w", InsufficientData("不足"))))
	assert.False(t, IsSoft(NoReviews("a")))
	assert.False(t, IsSoft(errors.New("other")))
}

func TestPayload(t *testing.T) {
	p := Payload(Persistence(errors.New("locked"), "保存分析结果失败"))
	assert.Equal(t, "保存分析结果失败", p.Error)

	p = Payload(errors.New("plain"))
	assert.Equal(t, "plain", p.Error)
}
