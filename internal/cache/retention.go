package cache

import "time"

// DefaultRetention 是缓存文件的默认保留窗口，超过后需要回源刷新。
const DefaultRetention = 24 * time.Hour

// Retention 根据文件 ModTime 与固定保留窗口判断缓存是否新鲜。
type Retention struct {
	window time.Duration
	now    func() time.Time
}

// NewRetention 构造保留策略，window <= 0 时使用 DefaultRetention，时钟默认 time.Now。
func NewRetention(window time.Duration) Retention {
	if window <= 0 {
		window = DefaultRetention
	}
	return Retention{
		window: window,
		now:    time.Now,
	}
}

// Window 返回生效的保留窗口。
func (r Retention) Window() time.Duration {
	return r.window
}

// Fresh 判断条目是否仍在保留窗口内：ModTime 早于 now-window 即视为过期。
func (r Retention) Fresh(entry Entry) bool {
	return !entry.ModTime.Before(r.now().Add(-r.window))
}
