package session

import (
	"fmt"
	"strings"
)

// PreconditionError 在会话尚未完成认证或未设置频道时返回
type PreconditionError struct {
	Missing []string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("please authenticate and set channel first (missing: %s)", strings.Join(e.Missing, ", "))
}

// Session 一次运行内的访问凭证与目标频道
type Session struct {
	Token     string
	TeamID    string
	ChannelID string
}

func (s *Session) SetToken(token string) {
	s.Token = token
}

func (s *Session) SetChannel(teamID, channelID string) {
	s.TeamID = teamID
	s.ChannelID = channelID
}

// Validate 检查会话是否完整，缺少任一字段时返回 *PreconditionError
func (s *Session) Validate() error {
	if s == nil {
		return &PreconditionError{Missing: []string{"token", "team id", "channel id"}}
	}

	var missing []string
	if s.Token == "" {
		missing = append(missing, "token")
	}
	if s.TeamID == "" {
		missing = append(missing, "team id")
	}
	if s.ChannelID == "" {
		missing = append(missing, "channel id")
	}
	if len(missing) > 0 {
		return &PreconditionError{Missing: missing}
	}
	return nil
}
