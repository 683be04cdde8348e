package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// Cache 把 Store、Fetcher 与 Retention 组合成 "读缓存 → 过期则回源 → 原子写回" 的流程。
type Cache struct {
	store     Store
	fetcher   Fetcher
	retention Retention
	logger    *logrus.Logger
}

// New constructs a Cache. A nil logger discards output.
func New(store Store, fetcher Fetcher, window time.Duration, logger *logrus.Logger) *Cache {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Cache{
		store:     store,
		fetcher:   fetcher,
		retention: NewRetention(window),
		logger:    logger,
	}
}

// Retention 返回当前生效的保留策略。
func (c *Cache) Retention() Retention {
	return c.retention
}

// FetchOrLoad 返回 id 对应的完整正文流。
//
// 缓存新鲜时不访问网络；缺失或过期时先把完整正文读入内存，再原子写入缓存文件。
// 回源失败返回 ErrRefreshFailed（包装原始错误），已有缓存文件保持原样，
// 即使它已过期也不会作为兜底返回。目录或文件不可用时返回 *FilesystemError。
func (c *Cache) FetchOrLoad(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := c.store.Ensure(); err != nil {
		return nil, err
	}

	cached, err := c.store.Get(ctx, id)
	switch {
	case err == nil:
		if c.retention.Fresh(cached.Entry) {
			c.logger.WithFields(logrus.Fields{
				"action":   "cache_lookup",
				"id":       id,
				"file":     cached.Entry.FilePath,
				"mod_time": cached.Entry.ModTime,
			}).Debug("cache_hit")
			return cached.Reader, nil
		}
		cached.Reader.Close()
		c.logger.WithFields(logrus.Fields{
			"action":   "cache_lookup",
			"id":       id,
			"mod_time": cached.Entry.ModTime,
		}).Debug("cache_stale")
	case errors.Is(err, ErrNotFound):
		// miss, continue
	default:
		return nil, err
	}

	started := time.Now()
	data, err := c.fetcher.Fetch(ctx, id)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"action":     "cache_refresh",
			"id":         id,
			"elapsed_ms": time.Since(started).Milliseconds(),
		}).Warn("cache_refresh_failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrRefreshFailed, id, err)
	}

	entry, err := c.store.Put(ctx, id, bytes.NewReader(data), PutOptions{})
	if err != nil {
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"action":     "cache_refresh",
		"id":         id,
		"file":       entry.FilePath,
		"size_bytes": entry.SizeBytes,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("cache_refreshed")

	published, err := c.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fsError("reopen", entry.FilePath, err)
		}
		return nil, err
	}
	return published.Reader, nil
}
