package pipeline

import (
	"context"
	"time"

	"github.com/fachebot/teams-digest-bot/internal/graph"
	"github.com/fachebot/teams-digest-bot/internal/logger"
	"github.com/fachebot/teams-digest-bot/internal/session"
	"github.com/fachebot/teams-digest-bot/internal/summarizer"
)

type authenticator interface {
	Authenticate(ctx context.Context, sess *session.Session) bool
}

type messageFetcher interface {
	GetMessages(ctx context.Context, sess *session.Session, daysBack int) ([]graph.Message, error)
}

type summaryGenerator interface {
	GenerateSummary(ctx context.Context, messages []graph.Message) summarizer.Summary
}

type summaryPublisher interface {
	PostSummary(ctx context.Context, sess *session.Session, summary string) error
}

// runRecorder 接收每次运行的结果（可选）
type runRecorder interface {
	Record(ctx context.Context, result *Result) error
}

type Options struct {
	TeamID    string
	ChannelID string
	DaysBack  int
}

// Pipeline 串联 认证 -> 设置频道 -> 拉取 -> 总结 -> 发送，每次 Run 独立
type Pipeline struct {
	auth      authenticator
	fetcher   messageFetcher
	generator summaryGenerator
	publisher summaryPublisher
	recorder  runRecorder
	options   Options
	now       func() time.Time
}

func New(auth authenticator, fetcher messageFetcher, generator summaryGenerator, publisher summaryPublisher, options Options) *Pipeline {
	if options.DaysBack <= 0 {
		options.DaysBack = 1
	}
	return &Pipeline{
		auth:      auth,
		fetcher:   fetcher,
		generator: generator,
		publisher: publisher,
		options:   options,
		now:       time.Now,
	}
}

// WithRecorder 设置运行结果记录器
func (p *Pipeline) WithRecorder(recorder runRecorder) *Pipeline {
	p.recorder = recorder
	return p
}

type run struct {
	result *Result
}

func (r *run) advance(state State, format string, args ...any) {
	r.result.State = state
	r.result.LastState = state
	logger.Infof(format, args...)
}

func (r *run) fail(reason string) {
	r.result.State = StateFailed
	r.result.Reason = reason
	logger.Errorf("[Pipeline] An error occurred: %s", reason)
}

// Run 执行一次完整流程，任何一步失败即终止，不重试
func (p *Pipeline) Run(ctx context.Context) *Result {
	r := &run{result: &Result{State: StateInit, LastState: StateInit, StartedAt: p.now()}}
	p.execute(ctx, r)
	r.result.FinishedAt = p.now()

	if p.recorder != nil {
		if err := p.recorder.Record(ctx, r.result); err != nil {
			logger.Warnf("[Pipeline] 记录运行结果失败: %v", err)
		}
	}
	return r.result
}

func (p *Pipeline) execute(ctx context.Context, r *run) {
	sess := &session.Session{}

	// init -> authenticated
	if !p.auth.Authenticate(ctx, sess) {
		r.fail(ReasonAuthenticationFailed)
		return
	}
	r.advance(StateAuthenticated, "[Pipeline] Successfully authenticated with Microsoft Graph API")

	// authenticated -> channel_set
	sess.SetChannel(p.options.TeamID, p.options.ChannelID)
	r.advance(StateChannelSet, "[Pipeline] 目标频道: team=%s, channel=%s", p.options.TeamID, p.options.ChannelID)

	// channel_set -> fetched
	messages, err := p.fetcher.GetMessages(ctx, sess, p.options.DaysBack)
	if err != nil {
		r.fail(err.Error())
		return
	}
	r.result.MessageCount = len(messages)
	r.advance(StateFetched, "[Pipeline] Retrieved %d messages", len(messages))

	// fetched -> summarized，总结器从不失败
	summary := p.generator.GenerateSummary(ctx, messages)
	r.result.Degraded = summary.Degraded
	if summary.Degraded {
		logger.Warnf("[Pipeline] 总结已降级，将发送错误文本: %s", summary.Text)
	}
	r.advance(StateSummarized, "[Pipeline] Generated summary successfully")

	// summarized -> posted
	if err := p.publisher.PostSummary(ctx, sess, summary.Text); err != nil {
		r.fail(err.Error())
		return
	}
	r.advance(StatePosted, "[Pipeline] Posted summary to channel successfully")
}
