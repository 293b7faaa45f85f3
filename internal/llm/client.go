package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fachebot/review-insight/internal/config"
	"github.com/fachebot/review-insight/internal/logger"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

var (
	// ErrTransport 网络、超时、限流或非 2xx 响应
	ErrTransport = errors.New("llm transport error")
	// ErrContent 调用成功但没有可用的文本（空结果、被拦截）
	ErrContent = errors.New("llm content error")
)

// openAIClientInterface 定义 OpenAI 客户端接口，便于测试
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// geminiModels 定义 Gemini 生成接口，便于测试
type geminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Client struct {
	config       *config.LLM
	openaiClient openAIClientInterface
	geminiClient geminiModels
	limiter      *rate.Limiter
}

// NewClient 按 Provider 创建客户端；transport 非空时经由该传输层（如 SOCKS5 代理）访问
func NewClient(ctx context.Context, cfg *config.LLM, transport *http.Transport) (*Client, error) {
	var httpClient *http.Client
	if transport != nil {
		httpClient = &http.Client{Transport: transport}
	}

	client := &Client{
		config:  cfg,
		limiter: newLimiter(cfg.RequestsPerMinute),
	}

	switch cfg.Provider {
	case ProviderGemini:
		gc, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     cfg.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, fmt.Errorf("创建 Gemini 客户端失败: %w", err)
		}
		client.geminiClient = gc.Models
	default:
		openaiConfig := openai.DefaultConfig(cfg.APIKey)
		openaiConfig.BaseURL = cfg.BaseURL
		if httpClient != nil {
			openaiConfig.HTTPClient = httpClient
		}
		client.openaiClient = openai.NewClientWithConfig(openaiConfig)
	}

	return client, nil
}

func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 1)
}

// Complete 发送一个 prompt 并返回模型的原始文本
// 传输错误按 RetryTimes 有限重试，内容错误不重试
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	attempts := max(c.config.RetryTimes, 1)

	interval := time.Duration(c.config.RetryIntervalMs) * time.Millisecond
	expBackOff := backoff.NewExponentialBackOff()
	if interval > 0 {
		expBackOff.InitialInterval = interval
	}
	b := backoff.WithContext(backoff.WithMaxRetries(expBackOff, uint64(attempts-1)), ctx)

	attempt := 0
	return backoff.RetryWithData(func() (string, error) {
		attempt++
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", backoff.Permanent(err)
			}
		}

		text, err := c.completeOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}
		if !retryable(err) {
			return "", backoff.Permanent(err)
		}
		if attempt < attempts {
			logger.Debugf("[LLM] 调用失败 (第 %d/%d 次)，稍后重试: %v", attempt, attempts, err)
		}
		return "", err
	}, b)
}

func (c *Client) completeOnce(ctx context.Context, prompt string) (string, error) {
	timeout := time.Duration(c.config.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.geminiClient != nil {
		return c.completeGemini(ctx, prompt)
	}
	return c.completeOpenAI(ctx, prompt)
}

func (c *Client) completeOpenAI(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}

	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: 调用 LLM API 失败: %w", ErrTransport, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: LLM API 返回空结果", ErrContent)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return "", fmt.Errorf("%w: 回复被内容过滤拦截", ErrContent)
	}
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: LLM API 返回空文本", ErrContent)
	}
	return content, nil
}

func (c *Client) completeGemini(ctx context.Context, prompt string) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(c.config.Temperature),
		MaxOutputTokens: int32(c.config.MaxTokens),
	}

	resp, err := c.geminiClient.GenerateContent(ctx, c.config.Model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("%w: 调用 Gemini API 失败: %w", ErrTransport, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: prompt 被拦截: %s", ErrContent, resp.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%w: Gemini API 返回空结果", ErrContent)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: 回复被安全策略拦截", ErrContent)
	}
	var sb strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
	}
	content := strings.TrimSpace(sb.String())
	if content == "" {
		return "", fmt.Errorf("%w: Gemini API 返回空文本", ErrContent)
	}
	return content, nil
}

// retryable 传输错误中，除 429 外的 4xx 属于请求本身的问题，重试无意义
func retryable(err error) bool {
	if !errors.Is(err, ErrTransport) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return false
	}
	return true
}
