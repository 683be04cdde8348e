package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultDirName 是缓存目录在系统临时目录下的固定子目录名。
const DefaultDirName = "odml.cache"

// DefaultDir 返回 <os.TempDir()>/odml.cache。
func DefaultDir() string {
	return filepath.Join(os.TempDir(), DefaultDirName)
}

// NewStore 以 basePath 为缓存目录构建磁盘缓存，整个进程复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("cache dir required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve cache dir: %w", err)
	}

	store := &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}
	if err := store.Ensure(); err != nil {
		return nil, err
	}
	return store, nil
}

// fileStore 通过 entryLock 避免同一 id 并发写入，同时复用 basePath。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Get(ctx context.Context, id string) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	filePath := s.Path(id)

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fsError("stat", filePath, err)
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	f, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fsError("open", filePath, err)
	}

	entry := Entry{
		ID:        id,
		FilePath:  filePath,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
	}

	return &ReadResult{
		Entry:  entry,
		Reader: f,
	}, nil
}

func (s *fileStore) Put(ctx context.Context, id string, body io.Reader, opts PutOptions) (*Entry, error) {
	unlock := s.lockEntry(id)
	defer unlock()

	filePath := s.Path(id)
	dir := filepath.Dir(filePath)

	tempFile, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return nil, fsError("create", dir, err)
	}
	tempName := tempFile.Name()

	written, err := copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, err
		}
		return nil, fsError("write", tempName, err)
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = time.Now()
	}
	// 时间戳在 rename 之前设置，发布后的文件不会短暂地呈现错误的 ModTime。
	if err := os.Chtimes(tempName, modTime, modTime); err != nil {
		os.Remove(tempName)
		return nil, fsError("chtimes", tempName, err)
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return nil, fsError("rename", filePath, err)
	}

	entry := Entry{
		ID:        id,
		FilePath:  filePath,
		SizeBytes: written,
		ModTime:   modTime,
	}
	return &entry, nil
}

// Ensure 创建缓存目录。与其它进程/线程的创建竞争是被允许的：
// 只要失败原因是目录已存在，就继续执行。
func (s *fileStore) Ensure() error {
	return ensureDir(s.basePath)
}

func (s *fileStore) Path(id string) string {
	return filepath.Join(s.basePath, FileName(id))
}

func (s *fileStore) lockEntry(id string) func() {
	s.mu.Lock()
	lock := s.locks[id]
	if lock == nil {
		lock = &entryLock{}
		s.locks[id] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, id)
		}
		s.mu.Unlock()
	}
}

// ensureDir 创建目录（含父目录），并把 "已存在" 归类为成功。
// 路径已存在但不是目录时仍然视为失败。
func ensureDir(dir string) error {
	parent := filepath.Dir(dir)
	if parent != dir {
		if err := os.MkdirAll(parent, 0o755); err != nil && !isExistingDir(parent, err) {
			return fsError("mkdir", parent, err)
		}
	}

	err := os.Mkdir(dir, 0o755)
	if err == nil || isExistingDir(dir, err) {
		return nil
	}
	return fsError("mkdir", dir, err)
}

func isExistingDir(dir string, err error) bool {
	if !errors.Is(err, fs.ErrExist) {
		return false
	}
	info, statErr := os.Stat(dir)
	return statErr == nil && info.IsDir()
}

// FileName 计算 id 对应的缓存文件名：md5(id) 的十六进制 + "." + id 的 basename。
// 同一 id 总是得到同一文件名；basename 仅用于人工排查。
func FileName(id string) string {
	sum := md5.Sum([]byte(id))
	return hex.EncodeToString(sum[:]) + "." + readableSuffix(id)
}

// readableSuffix 取 id 最后一个路径段，并替换掉文件系统不友好的字符。
func readableSuffix(id string) string {
	base := id
	if idx := strings.LastIndexAny(base, `/\`); idx >= 0 {
		base = base[idx+1:]
	}
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	suffix := strings.Trim(b.String(), ".")
	if suffix == "" {
		return "root"
	}
	return suffix
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
