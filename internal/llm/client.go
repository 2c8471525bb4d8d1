package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fachebot/teams-digest-bot/internal/config"
	"github.com/fachebot/teams-digest-bot/internal/logger"
	"github.com/sashabaranov/go-openai"
)

// openAIClientInterface 定义 OpenAI 客户端接口，便于测试
type openAIClientInterface interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Client struct {
	config       *config.LLM
	openaiClient openAIClientInterface
	timeout      time.Duration
}

// NewClient 创建 LLM 客户端，httpClient 为 nil 时使用 go-openai 默认客户端
func NewClient(cfg *config.LLM, httpClient *http.Client, timeout time.Duration) *Client {
	openaiConfig := openai.DefaultConfig(cfg.APIKey)
	openaiConfig.BaseURL = cfg.BaseURL
	if httpClient != nil {
		openaiConfig.HTTPClient = httpClient
	}

	return &Client{
		config:       cfg,
		openaiClient: openai.NewClientWithConfig(openaiConfig),
		timeout:      timeout,
	}
}

// estimateTokens 估算文本的 token 数量
func estimateTokens(text string) int {
	// 中文约 1.5 token/字，英文约 1.3 token/词，下限为字节数的 1/4
	chineseChars := 0
	for _, r := range text {
		if r >= 0x4e00 && r <= 0x9fff {
			chineseChars++
		}
	}
	englishWords := len(strings.Fields(text))

	tokens := int(float64(chineseChars)*1.5 + float64(englishWords)*1.3)
	if tokens < len(text)/4 {
		tokens = len(text) / 4
	}
	return tokens
}

// Complete 以 system + user 两轮提示调用补全接口，原样返回第一个候选的内容
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tokens := estimateTokens(systemPrompt) + estimateTokens(userPrompt)
	if c.config.MaxTokens > 0 && tokens > c.config.MaxTokens {
		logger.Warnf("[LLM] 提示词约 %d tokens，超过模型上下文 %d，请求可能被拒绝", tokens, c.config.MaxTokens)
	}

	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}

	logger.Debugf("[LLM] 请求模型 %s, 约 %d tokens", c.config.Model, tokens)
	resp, err := c.openaiClient.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
