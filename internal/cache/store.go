package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<CacheDir>/<md5(id)>.<basename(id)>    # 实际正文
//
// 每个条目仅由正文文件组成，文件的 ModTime/Size 由文件系统提供。
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, id string) (*ReadResult, error)

	// Put 将抓取到的完整正文写入缓存，并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。可选地根据 opts.ModTime 设置文件时间戳。
	Put(ctx context.Context, id string, body io.Reader, opts PutOptions) (*Entry, error)

	// Ensure 确保缓存目录存在；目录已存在视为成功，其它失败返回 *FilesystemError。
	Ensure() error

	// Path 返回 id 对应的缓存文件绝对路径。
	Path(id string) string
}

// Fetcher 负责把远端资源完整读入内存。实现不得把不完整的正文当作成功返回。
type Fetcher interface {
	Fetch(ctx context.Context, id string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id string) ([]byte, error)

// Fetch makes FetcherFunc satisfy Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, id string) ([]byte, error) {
	return f(ctx, id)
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Entry 表示一次缓存命中结果，包含绝对文件路径及文件信息。
type Entry struct {
	ID        string    `json:"id"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader，便于上层直接交给解析器。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

// ErrRefreshFailed 表示缓存缺失或过期且回源失败；已有缓存文件保持不变。
var ErrRefreshFailed = errors.New("cache refresh failed")

// FilesystemError 表示缓存目录或缓存文件不可用。它意味着运行环境已损坏，
// 调用方应当把它当作致命错误向上传递，而不是降级处理。
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

func fsError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var existing *FilesystemError
	if errors.As(err, &existing) {
		return err
	}
	return &FilesystemError{Op: op, Path: path, Err: err}
}
