package graph

// UnknownSender 缺少发送者时使用的名称
const UnknownSender = "Unknown"

// Identity Graph identity 资源中本程序关心的字段
type Identity struct {
	ID          string `json:"id,omitempty"`
	DisplayName *string `json:"displayName,omitempty"` // 区分缺失与空字符串
}

// MessageFrom chatMessage.from，系统消息中可能为 null
type MessageFrom struct {
	User        *Identity `json:"user,omitempty"`
	Application *Identity `json:"application,omitempty"`
}

// ItemBody chatMessage.body
type ItemBody struct {
	ContentType string `json:"contentType,omitempty"`
	Content     string `json:"content"`
}

// Message 频道中的一条消息
type Message struct {
	ID              string       `json:"id,omitempty"`
	CreatedDateTime string       `json:"createdDateTime,omitempty"`
	From            *MessageFrom `json:"from,omitempty"`
	Body            *ItemBody    `json:"body,omitempty"`
}

// SenderName 返回发送者显示名，字段缺失时返回 "Unknown"，空名称原样返回
func (m Message) SenderName() string {
	if m.From == nil || m.From.User == nil || m.From.User.DisplayName == nil {
		return UnknownSender
	}
	return *m.From.User.DisplayName
}

// Content 返回消息正文，缺失时返回空字符串
func (m Message) Content() string {
	if m.Body == nil {
		return ""
	}
	return m.Body.Content
}

type messageCollection struct {
	Value    []Message `json:"value"`
	NextLink string    `json:"@odata.nextLink,omitempty"`
}

type createMessageRequest struct {
	Body ItemBody `json:"body"`
}
