package analyzer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fachebot/review-insight/internal/model"
)

const overallPromptHeader = "당신은 모바일 앱 리뷰 분석 전문가입니다. 아래 앱의 사용자 리뷰 전체를 종합적으로 분석해 주세요."

const reviewPromptHeader = "다음 앱 리뷰 한 건을 분석해 주세요."

// buildOverallPrompt 构造总体分析 prompt
// 评论部分超过 maxChars（按字符计）时从尾部整条丢弃，返回实际纳入的评论数
func buildOverallPrompt(app *model.App, reviews []*model.Review, maxChars int) (string, int) {
	var sb strings.Builder
	sb.WriteString(overallPromptHeader)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "앱 이름: %s\n", app.AppName)
	fmt.Fprintf(&sb, "패키지: %s\n", app.AppID)
	fmt.Fprintf(&sb, "평점: %s\n", app.Rating)
	fmt.Fprintf(&sb, "리뷰 수: %s\n", app.ReviewCount)
	fmt.Fprintf(&sb, "다운로드 수: %s\n\n", app.DownloadCount)
	sb.WriteString("다음 항목을 포함해 한국어로 작성해 주세요:\n")
	sb.WriteString("1. 전반적인 사용자 만족도\n")
	sb.WriteString("2. 주요 장점\n")
	sb.WriteString("3. 주요 불만 사항\n")
	sb.WriteString("4. 개선 제안\n\n")

	lines, included := reviewLines(reviews, maxChars)
	fmt.Fprintf(&sb, "리뷰 목록 (전체 %d개 중 %d개):\n", len(reviews), included)
	sb.WriteString(lines)
	return sb.String(), included
}

func reviewLines(reviews []*model.Review, maxChars int) (string, int) {
	var sb strings.Builder
	used := 0
	included := 0
	for _, r := range reviews {
		line := fmt.Sprintf("- [평점 %d] %s\n", r.Rating, oneLine(r.Content))
		n := utf8.RuneCountInString(line)
		if used+n > maxChars {
			break
		}
		sb.WriteString(line)
		used += n
		included++
	}

	// 第一条就超出预算时截断它，保证 prompt 至少含一条评论
	if included == 0 && len(reviews) > 0 && maxChars > 0 {
		runes := []rune(fmt.Sprintf("- [평점 %d] %s", reviews[0].Rating, oneLine(reviews[0].Content)))
		if len(runes) > maxChars-1 {
			runes = runes[:max(maxChars-1, 0)]
		}
		sb.WriteString(string(runes))
		sb.WriteString("\n")
		included = 1
	}
	return sb.String(), included
}

// buildReviewPrompt 构造单条评论分析 prompt
func buildReviewPrompt(r *model.Review) string {
	var sb strings.Builder
	sb.WriteString(reviewPromptHeader)
	sb.WriteString(" 감정(긍정/부정/중립), 핵심 내용, 개선이 필요한 점을 2~3문장으로 요약해 주세요.\n\n")
	fmt.Fprintf(&sb, "평점: %d/5\n", r.Rating)
	fmt.Fprintf(&sb, "리뷰: %s\n", r.Content)
	return sb.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
