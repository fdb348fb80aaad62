package diag

import (
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// CurrentLogName: 当前日志文件名；轮转后的历史文件由 lumberjack 追加时间戳。
const CurrentLogName = "ctxdict-current.log"

// RotatingFile 将日志行写入指定目录，并按文件大小轮转。
// 轮转阈值以 MiB 为粒度（不足 1 MiB 按 1 MiB 计）。
type RotatingFile struct {
	mu sync.Mutex
	lj *lumberjack.Logger
}

// NewRotatingFile 创建 dir/ctxdict-current.log；maxBytes <= 0 取 10 MiB。
func NewRotatingFile(dir string, maxBytes int64) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = LogMaxBytes
	}
	mb := int((maxBytes + (1<<20 - 1)) >> 20)
	return &RotatingFile{lj: &lumberjack.Logger{
		Filename:  filepath.Join(dir, CurrentLogName),
		MaxSize:   mb,
		LocalTime: false,
	}}
}

// Write 实现 io.Writer（调用方保证每次写入一整行）。
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lj.Write(p)
}

// WriteLine 写入一行（自动补换行）。
func (w *RotatingFile) WriteLine(b []byte) error {
	line := make([]byte, 0, len(b)+1)
	line = append(append(line, b...), '\n')
	_, err := w.Write(line)
	return err
}

// Rotate 立即轮转：当前文件改名为带时间戳的历史文件，新建当前文件。
func (w *RotatingFile) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lj.Rotate()
}

// Filename 返回当前日志文件路径。
func (w *RotatingFile) Filename() string { return w.lj.Filename }

// Close 关闭当前打开的文件句柄
func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lj.Close()
}
