package registry

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/termcache/termcache/internal/terminology"
)

// Result 是 Prefetch 中单个 id 的结果，Err 为 nil 时 Terminology 一定非空。
type Result struct {
	ID          string
	Terminology *terminology.Terminology
	Err         error
}

// Prefetch 以最多 limit 个并发同步加载 ids，结果顺序与 ids 一致。
// 不可用与等待超时记录在各自的 Result 中；遇到缓存目录不可用这类致命错误时
// 停止派发剩余 id 并返回该错误。
func (r *Registry) Prefetch(ctx context.Context, ids []string, limit int) ([]Result, error) {
	results := make([]Result, len(ids))
	if len(ids) == 0 {
		return results, nil
	}
	if limit <= 0 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(limit, len(ids)))

	for i, id := range ids {
		results[i].ID = id
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			term, err := r.Load(gctx, id)
			results[i].Terminology = term
			results[i].Err = err
			if err != nil && !errors.Is(err, ErrUnavailable) && !errors.Is(err, ErrWaitTimeout) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
