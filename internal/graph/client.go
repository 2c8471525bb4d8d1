package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fachebot/teams-digest-bot/internal/logger"
	"github.com/fachebot/teams-digest-bot/internal/session"
)

// TimeFormat 时间窗口的格式（UTC）
const TimeFormat = "2006-01-02T15:04:05Z"

type Client struct {
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		now:        time.Now,
	}
}

// TimeWindow 计算 [now - daysBack 天, now] 的 UTC 时间窗口
func TimeWindow(now time.Time, daysBack int) (start, end string) {
	endTime := now.UTC()
	startTime := endTime.AddDate(0, 0, -daysBack)
	return startTime.Format(TimeFormat), endTime.Format(TimeFormat)
}

func (c *Client) channelMessagesURL(sess *session.Session) string {
	return fmt.Sprintf("%s/teams/%s/channels/%s/messages",
		c.baseURL, url.PathEscape(sess.TeamID), url.PathEscape(sess.ChannelID))
}

// GetMessages 读取频道消息集合的第一页
// 时间窗口只用于日志，过滤交由服务端，本地不做时间过滤
func (c *Client) GetMessages(ctx context.Context, sess *session.Session, daysBack int) ([]Message, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if daysBack < 1 {
		return nil, fmt.Errorf("days back must be positive, got %d", daysBack)
	}

	start, end := TimeWindow(c.now(), daysBack)
	logger.Debugf("[Graph] 拉取频道消息, 时间窗口: %s ~ %s", start, end)

	status, body, err := c.do(ctx, http.MethodGet, c.channelMessagesURL(sess), sess.Token, nil)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	if status != http.StatusOK {
		return nil, &RemoteError{Op: "get messages", StatusCode: status, Body: string(body)}
	}

	var collection messageCollection
	if err := json.Unmarshal(body, &collection); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if collection.NextLink != "" {
		logger.Debugf("[Graph] 存在更多分页，仅读取第一页")
	}
	if collection.Value == nil {
		return []Message{}, nil
	}
	return collection.Value, nil
}

// CreateMessage 在频道中发送一条新消息，成功状态为 201
func (c *Client) CreateMessage(ctx context.Context, sess *session.Session, body ItemBody) error {
	if err := sess.Validate(); err != nil {
		return err
	}

	payload, err := json.Marshal(createMessageRequest{Body: body})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	status, respBody, err := c.do(ctx, http.MethodPost, c.channelMessagesURL(sess), sess.Token, payload)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	if status != http.StatusCreated {
		return &RemoteError{Op: "post message", StatusCode: status, Body: string(respBody)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint, token string, payload []byte) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}
