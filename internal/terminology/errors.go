package terminology

import "fmt"

// ParseError 表示术语文档格式错误或 Finalize 校验失败。
type ParseError struct {
	Label   string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s: %s: %v", e.Label, e.Message, e.Err)
	}
	return fmt.Sprintf("parse %s: %s", e.Label, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
