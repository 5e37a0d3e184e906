package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// fileWatch 监听单个文件所在的目录。编辑器多以"写临时文件再 rename"保存，
// 直接监听文件本身在第一次保存后就会失效。debounce 内的连续事件合并为一次
// notify，removed 表示触发时文件不存在。
type fileWatch struct {
	path     string
	debounce time.Duration
	notify   func(removed bool)
	logger   *zap.Logger

	fw        *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func startFileWatch(ctx context.Context, path string, debounce time.Duration, logger *zap.Logger, notify func(removed bool)) (*fileWatch, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &fileWatch{
		path:     filepath.Clean(path),
		debounce: debounce,
		notify:   notify,
		logger:   logger,
		fw:       fw,
		done:     make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

func (w *fileWatch) run(ctx context.Context) {
	defer close(w.done)

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = w.close()
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", zap.Error(err))

		case <-fire:
			fire = nil
			_, err := os.Stat(w.path)
			w.notify(errors.Is(err, fs.ErrNotExist))
		}
	}
}

func (w *fileWatch) close() error {
	w.closeOnce.Do(func() { w.closeErr = w.fw.Close() })
	return w.closeErr
}

// stop 可重复调用，返回时事件循环已退出
func (w *fileWatch) stop() error {
	err := w.close()
	<-w.done
	return err
}
