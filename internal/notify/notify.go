package notify

import (
	"context"
	"errors"

	"github.com/fachebot/teams-digest-bot/internal/config"
	"github.com/fachebot/teams-digest-bot/internal/graph"
	"github.com/fachebot/teams-digest-bot/internal/logger"
	"github.com/fachebot/teams-digest-bot/internal/session"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// SummaryHeading 每条总结消息的标题
const SummaryHeading = "📊 **Daily Summary**"

// messagePoster 向频道发送消息（便于测试注入 mock）
type messagePoster interface {
	CreateMessage(ctx context.Context, sess *session.Session, body graph.ItemBody) error
}

type Notifier struct {
	poster      messagePoster
	contentType string
}

func NewNotifier(poster messagePoster, contentType string) *Notifier {
	return &Notifier{
		poster:      poster,
		contentType: contentType,
	}
}

// FormatSummary 标题 + 一个空行 + 原始总结文本
func FormatSummary(summary string) string {
	return SummaryHeading + "\n\n" + summary
}

// markdownToHTML 将 markdown 渲染为 Teams 可显示的 HTML
func markdownToHTML(md string) string {
	extensions := parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	return string(markdown.Render(doc, renderer))
}

// buildBody 按配置的消息格式构造消息体，text 模式下不设置 contentType
func (n *Notifier) buildBody(summary string) graph.ItemBody {
	content := FormatSummary(summary)
	if n.contentType == config.ContentTypeHTML {
		return graph.ItemBody{ContentType: config.ContentTypeHTML, Content: markdownToHTML(content)}
	}
	return graph.ItemBody{Content: content}
}

// PostSummary 将总结发送回频道
func (n *Notifier) PostSummary(ctx context.Context, sess *session.Session, summary string) error {
	err := n.poster.CreateMessage(ctx, sess, n.buildBody(summary))
	if err == nil {
		logger.Infof("[Notify] 已发送总结到频道 %s", sess.ChannelID)
		return nil
	}

	var remoteErr *graph.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.WithOp("post summary")
	}
	return err
}
