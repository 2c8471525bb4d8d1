package pipeline

import "time"

// State 一次运行所处的阶段
type State string

const (
	StateInit          State = "init"
	StateAuthenticated State = "authenticated"
	StateChannelSet    State = "channel_set"
	StateFetched       State = "fetched"
	StateSummarized    State = "summarized"
	StatePosted        State = "posted"
	StateFailed        State = "failed"
)

// ReasonAuthenticationFailed 认证失败时的失败原因
const ReasonAuthenticationFailed = "authentication failed"

// IsTerminal posted 与 failed 为终止状态
func (s State) IsTerminal() bool {
	return s == StatePosted || s == StateFailed
}

// Result 一次运行的最终结果
type Result struct {
	State        State
	LastState    State // 失败前到达的最后一个状态
	Reason       string
	MessageCount int
	Degraded     bool
	StartedAt    time.Time
	FinishedAt   time.Time
}

func (r *Result) Failed() bool {
	return r.State == StateFailed
}
