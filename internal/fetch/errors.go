package fetch

import (
	"errors"
	"fmt"
	"net/url"
)

// TransportError 描述一次回源失败：主机不可达、超时、非 2xx 状态或正文被截断。
type TransportError struct {
	ID         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.ID, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.ID, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %v", e.ID, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Temporary 表示是否值得在同一次 Fetch 内重试：client.Do 返回的网络错误或 5xx。
// 请求构造失败等其它无状态码错误重试也不会成功。
func (e *TransportError) Temporary() bool {
	if e.StatusCode == 0 {
		var netErr *url.Error
		return errors.As(e.Err, &netErr)
	}
	return e.StatusCode >= 500
}
