package graph

import "fmt"

// RemoteError Graph 返回了非成功状态码，Body 为原始响应体
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("Failed to %s: %s", e.Op, e.Body)
}

// WithOp 返回替换了操作名的副本
func (e *RemoteError) WithOp(op string) *RemoteError {
	clone := *e
	clone.Op = op
	return &clone
}
