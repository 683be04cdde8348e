package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/termcache/termcache/internal/logging"
)

// Options 控制 Fetcher 的重试与身份信息。
type Options struct {
	Client         *http.Client
	Logger         *logrus.Logger
	UserAgent      string
	MaxRetries     int
	InitialBackoff time.Duration
}

// Fetcher 按 id 的 scheme 选择 HTTP 或本地文件读取，并保证只返回完整正文。
type Fetcher struct {
	client     *http.Client
	logger     *logrus.Logger
	userAgent  string
	maxRetries int
	backoff    time.Duration
	sleep      func(context.Context, time.Duration) error
}

// New constructs a Fetcher with shared client/logger.
func New(opts Options) *Fetcher {
	client := opts.Client
	if client == nil {
		client = NewClient(0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	backoff := opts.InitialBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	retries := opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Fetcher{
		client:     client,
		logger:     logger,
		userAgent:  opts.UserAgent,
		maxRetries: retries,
		backoff:    backoff,
		sleep:      sleepContext,
	}
}

// Fetch 读取 id 对应的完整正文。http/https 走网络，file:// 与普通路径读本地文件。
// 所有失败都以 *TransportError 返回。
func (f *Fetcher) Fetch(ctx context.Context, id string) ([]byte, error) {
	target, err := url.Parse(id)
	if err != nil {
		return nil, &TransportError{ID: id, Err: err}
	}

	switch strings.ToLower(target.Scheme) {
	case "http", "https":
		return f.fetchHTTP(ctx, id)
	case "file":
		return readLocal(id, target.Path)
	case "":
		return readLocal(id, id)
	default:
		if len(target.Scheme) == 1 {
			// Windows 盘符，例如 C:\terms.xml
			return readLocal(id, id)
		}
		return nil, &TransportError{ID: id, Err: fmt.Errorf("unsupported scheme %q", target.Scheme)}
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, id string) ([]byte, error) {
	delay := f.backoff
	var lastErr *TransportError
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			f.logger.WithFields(logrus.Fields{
				"action":  "fetch_retry",
				"id":      id,
				"attempt": attempt,
				"delay":   delay.String(),
			}).Warn(lastErr.Error())
			if err := f.sleep(ctx, delay); err != nil {
				return nil, &TransportError{ID: id, Err: err}
			}
			delay *= 2
		}

		data, err := f.doRequest(ctx, id)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !err.Temporary() || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (f *Fetcher) doRequest(ctx context.Context, id string) ([]byte, *TransportError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, id, nil)
	if err != nil {
		return nil, &TransportError{ID: id, Err: err}
	}
	req.Header.Set("Accept", "application/xml, text/xml;q=0.9, */*;q=0.1")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{ID: id, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, &TransportError{ID: id, StatusCode: resp.StatusCode}
	}

	// 先完整读入内存，避免把半截正文写进缓存。
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{ID: id, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.ContentLength >= 0 && int64(len(data)) != resp.ContentLength {
		return nil, &TransportError{
			ID:         id,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("short body: got %d of %d bytes", len(data), resp.ContentLength),
		}
	}
	return data, nil
}

func readLocal(id, path string) ([]byte, error) {
	if path == "" {
		return nil, &TransportError{ID: id, Err: errors.New("empty path")}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &TransportError{ID: id, Err: err}
	}
	return data, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
