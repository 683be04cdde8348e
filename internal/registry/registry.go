package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/termcache/termcache/internal/cache"
	"github.com/termcache/termcache/internal/logging"
	"github.com/termcache/termcache/internal/terminology"
)

// Source 提供 id 对应的完整正文流，*cache.Cache 是默认实现。
type Source interface {
	FetchOrLoad(ctx context.Context, id string) (io.ReadCloser, error)
}

// Options 汇总 Registry 的依赖。
type Options struct {
	Source Source
	Parser terminology.Parser
	Logger *logrus.Logger
	// WaitTimeout 限制等待进行中加载的时长，0 表示不限制。
	WaitTimeout time.Duration
}

// Registry 保存已完成的加载结果以及进行中的加载。
//
// table 中值为 nil 表示该 id 加载失败；inflight 中的 call 在其加载结束时被关闭。
// 对两张表的 "检查后插入/删除" 都在 mu 内完成。
type Registry struct {
	source      Source
	parser      terminology.Parser
	logger      *logrus.Logger
	waitTimeout time.Duration

	mu       sync.Mutex
	table    map[string]*terminology.Terminology
	inflight map[string]*call
}

// call 是一次进行中加载的一次性完成信号，与 inflight 登记在同一临界区内创建。
type call struct {
	done     chan struct{}
	deferred bool
}

// New 构建 Registry。调用方应在启动阶段创建一次并复用。
func New(opts Options) (*Registry, error) {
	if opts.Source == nil {
		return nil, errors.New("source is required")
	}
	parser := opts.Parser
	if parser == nil {
		parser = terminology.XMLParser{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.WaitTimeout < 0 {
		return nil, fmt.Errorf("invalid wait timeout: %s", opts.WaitTimeout)
	}

	return &Registry{
		source:      opts.Source,
		parser:      parser,
		logger:      logger,
		waitTimeout: opts.WaitTimeout,
		table:       make(map[string]*terminology.Terminology),
		inflight:    make(map[string]*call),
	}, nil
}

// Load 同步获取 id 对应的术语。
//
// 已完成的条目直接返回（失败条目返回 ErrUnavailable），不做 I/O；若 id 正在加载，
// 阻塞直到该加载结束后重新查找；否则在当前 goroutine 内执行加载。
// ctx 只约束等待过程，一旦开始的加载总会执行完毕。缓存目录不可用时返回 *cache.FilesystemError。
func (r *Registry) Load(ctx context.Context, id string) (*terminology.Terminology, error) {
	if r.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.waitTimeout)
		defer cancel()
	}

	for {
		r.mu.Lock()
		if term, ok := r.table[id]; ok {
			r.mu.Unlock()
			return result(term)
		}
		if c, ok := r.inflight[id]; ok {
			r.mu.Unlock()
			if err := r.wait(ctx, id, c); err != nil {
				return nil, err
			}
			continue
		}
		c := r.begin(id, false)
		r.mu.Unlock()

		return r.run(context.WithoutCancel(ctx), id, c)
	}
}

// DeferredLoad 在后台加载 id 并立即返回。id 已完成或正在加载时为空操作，
// 结果稍后通过 Load 取得。
func (r *Registry) DeferredLoad(id string) {
	r.mu.Lock()
	if _, ok := r.table[id]; ok {
		r.mu.Unlock()
		return
	}
	if _, ok := r.inflight[id]; ok {
		r.mu.Unlock()
		return
	}
	c := r.begin(id, true)
	r.mu.Unlock()

	r.logger.WithFields(logging.LoadFields(id, string(StateInFlight), false)).Debug("terminology_deferred")
	go func() {
		if _, err := r.run(context.Background(), id, c); err != nil && !errors.Is(err, ErrUnavailable) {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"action": "terminology_deferred",
				"id":     id,
			}).Error("terminology_load_aborted")
		}
	}()
}

// State 返回 id 当前所处的状态。
func (r *Registry) State(id string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked(id)
}

// Snapshot 返回所有已知 id 的状态，按 id 排序。
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.table)+len(r.inflight))
	for id := range r.table {
		ids = append(ids, id)
	}
	for id := range r.inflight {
		if _, done := r.table[id]; !done {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	result := make([]Status, 0, len(ids))
	for _, id := range ids {
		status := Status{ID: id, State: r.stateLocked(id)}
		if term := r.table[id]; term != nil {
			status.Name = term.Name
			status.Sections = term.Count()
		}
		result = append(result, status)
	}
	return result
}

func (r *Registry) stateLocked(id string) State {
	if term, ok := r.table[id]; ok {
		if term == nil {
			return StateFailed
		}
		return StateLoaded
	}
	if _, ok := r.inflight[id]; ok {
		return StateInFlight
	}
	return StateUnrequested
}

// begin 登记进行中加载，调用方必须持有 mu。
func (r *Registry) begin(id string, deferred bool) *call {
	c := &call{done: make(chan struct{}), deferred: deferred}
	r.inflight[id] = c
	return c
}

func (r *Registry) wait(ctx context.Context, id string, c *call) error {
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		r.logger.WithFields(logrus.Fields{
			"action": "terminology_wait",
			"id":     id,
		}).Warn("terminology_wait_timeout")
		return fmt.Errorf("%w: %s: %w", ErrWaitTimeout, id, ctx.Err())
	}
}

// run 执行一次加载并在结束时发布结果。
func (r *Registry) run(ctx context.Context, id string, c *call) (term *terminology.Terminology, err error) {
	recorded := false
	defer func() {
		r.finish(id, c, term, recorded)
	}()

	started := time.Now()
	term, err = r.load(ctx, id)
	var fsErr *cache.FilesystemError
	if errors.As(err, &fsErr) {
		// 运行环境损坏：不记录终态，直接上抛。
		return nil, err
	}
	recorded = true

	fields := logging.LoadFields(id, string(StateLoaded), false)
	fields["deferred"] = c.deferred
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["state"] = string(StateFailed)
		r.logger.WithError(err).WithFields(fields).Warn("terminology_load_failed")
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, id)
	}
	fields["name"] = term.Name
	fields["sections"] = term.Count()
	r.logger.WithFields(fields).Info("terminology_loaded")
	return term, nil
}

// load 从缓存取正文并解析，回源或解析失败都返回非 FilesystemError 的错误。
func (r *Registry) load(ctx context.Context, id string) (*terminology.Terminology, error) {
	body, err := r.source.FetchOrLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	term, err := r.parser.Parse(body, id)
	if err != nil {
		return nil, err
	}
	if term == nil {
		return nil, &terminology.ParseError{Label: id, Message: "parser returned no terminology"}
	}
	return term, nil
}

// finish 在同一临界区内记录结果并移除 inflight，随后关闭完成信号。
// 等待者被唤醒后重新查找时一定能看到已记录的结果。
func (r *Registry) finish(id string, c *call, term *terminology.Terminology, record bool) {
	r.mu.Lock()
	if record {
		r.table[id] = term
	}
	if r.inflight[id] == c {
		delete(r.inflight, id)
	}
	r.mu.Unlock()
	close(c.done)
}

func result(term *terminology.Terminology) (*terminology.Terminology, error) {
	if term == nil {
		return nil, ErrUnavailable
	}
	return term, nil
}
