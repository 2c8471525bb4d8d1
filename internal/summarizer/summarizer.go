package summarizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/fachebot/teams-digest-bot/internal/graph"
	"github.com/fachebot/teams-digest-bot/internal/logger"
)

const (
	systemPrompt     = "You are a helpful assistant that creates concise summaries of team messages."
	userPromptPrefix = "Please create a concise summary of these team messages:\n\n"
)

// completer 调用 LLM 补全（便于测试注入 mock）
type completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type Summarizer struct {
	llmClient completer
}

func NewSummarizer(llmClient completer) *Summarizer {
	return &Summarizer{llmClient: llmClient}
}

// CombineMessages 将消息按原顺序转为 "发送者: 内容"，以换行拼接
func CombineMessages(messages []graph.Message) string {
	lines := make([]string, len(messages))
	for i, msg := range messages {
		lines[i] = fmt.Sprintf("%s: %s", msg.SenderName(), msg.Content())
	}
	return strings.Join(lines, "\n")
}

// GenerateSummary 生成总结，从不返回错误：LLM 失败时返回降级结果
func (s *Summarizer) GenerateSummary(ctx context.Context, messages []graph.Message) (result Summary) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[Summarizer] 生成总结时发生 panic: %v", r)
			result = Degraded(fmt.Errorf("%v", r))
		}
	}()

	combined := CombineMessages(messages)
	logger.Infof("[Summarizer] 开始总结 %d 条消息", len(messages))

	text, err := s.llmClient.Complete(ctx, systemPrompt, userPromptPrefix+combined)
	if err != nil {
		logger.Warnf("[Summarizer] LLM 总结失败, 降级为错误文本: %v", err)
		return Degraded(err)
	}

	logger.Infof("[Summarizer] 总结完成, 共 %d 字符", len(text))
	return Succeeded(text)
}
