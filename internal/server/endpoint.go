package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
)

var (
	ErrStarted = errors.New("endpoint already started")
	ErrStopped = errors.New("endpoint stopped")
)

// Options 一个监听端口的设置
type Options struct {
	// 日志里的名字，例如 api、metrics
	Name string
	Addr string

	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// 同时保持的连接上限，0 不限制
	MaxConnections int

	// CertFile 与 KeyFile 都设置时以 HTTPS 提供服务
	CertFile string
	KeyFile  string
	TLS      *tls.Config
}

// OptionsFrom 从应用配置构造；port 为 0 时监听随机端口
func OptionsFrom(name string, cfg config.ServerConfig, port int) Options {
	o := Options{
		Name:              name,
		Addr:              net.JoinHostPort("", strconv.Itoa(port)),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		MaxHeaderBytes:    1 << 20,
		MaxConnections:    cfg.MaxConnections,
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 30 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 30 * time.Second
	}
	return o
}

func (o Options) secure() bool { return o.CertFile != "" && o.KeyFile != "" }

// Endpoint 一个 http.Server 及其监听器。只能启动一次。
type Endpoint struct {
	opts   Options
	srv    *http.Server
	logger *zap.Logger

	mu      sync.Mutex
	ln      net.Listener
	stopped bool

	// 服务异常退出时收到错误；正常 Stop 不发送
	failed chan error
}

func New(handler http.Handler, opts Options, logger *zap.Logger) *Endpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Endpoint{
		opts: opts,
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           handler,
			ReadTimeout:       opts.ReadTimeout,
			ReadHeaderTimeout: opts.ReadHeaderTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       opts.IdleTimeout,
			MaxHeaderBytes:    opts.MaxHeaderBytes,
			TLSConfig:         opts.TLS,
			ErrorLog:          zap.NewStdLog(logger.Named("http")),
		},
		logger: logger.With(zap.String("endpoint", opts.Name)),
		failed: make(chan error, 1),
	}
}

// Start 打开监听并在后台提供服务
func (e *Endpoint) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.stopped:
		return ErrStopped
	case e.ln != nil:
		return ErrStarted
	}

	ln, err := net.Listen("tcp", e.opts.Addr)
	if err != nil {
		return fmt.Errorf("%s: listen %s: %w", e.opts.Name, e.opts.Addr, err)
	}
	if e.opts.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, e.opts.MaxConnections)
	}
	e.ln = ln

	e.logger.Info("listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", e.opts.secure()),
		zap.Int("max_connections", e.opts.MaxConnections),
	)
	go e.serve(ln)
	return nil
}

func (e *Endpoint) serve(ln net.Listener) {
	var err error
	if e.opts.secure() {
		err = e.srv.ServeTLS(ln, e.opts.CertFile, e.opts.KeyFile)
	} else {
		err = e.srv.Serve(ln)
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	e.logger.Error("serve failed", zap.Error(err))
	e.failed <- fmt.Errorf("%s: %w", e.opts.Name, err)
}

// Failed 服务异常退出时可读
func (e *Endpoint) Failed() <-chan error { return e.failed }

// Addr 启动后为实际监听地址
func (e *Endpoint) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ln != nil {
		return e.ln.Addr().String()
	}
	return e.opts.Addr
}

// Running 已启动且未停止
func (e *Endpoint) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ln != nil && !e.stopped
}

// Stop 停止接收新连接并等待进行中的请求，最长 ShutdownTimeout。可重复调用。
func (e *Endpoint) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	e.mu.Unlock()

	if e.opts.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ShutdownTimeout)
		defer cancel()
	}
	if err := e.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s: shutdown: %w", e.opts.Name, err)
	}
	e.logger.Info("stopped")
	return nil
}

// Serve 阻塞到 ctx 结束或任一端点异常退出，然后停止全部端点。
// 返回异常退出的错误与停止时的错误。
func Serve(ctx context.Context, endpoints ...*Endpoint) error {
	failed := make(chan error, len(endpoints))
	var wg sync.WaitGroup
	watch, cancel := context.WithCancel(ctx)
	for _, e := range endpoints {
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case err := <-e.failed:
				failed <- err
			case <-watch.Done():
			}
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-failed:
	}
	cancel()
	wg.Wait()

	errs := []error{serveErr}
	stopCtx := context.WithoutCancel(ctx)
	for _, e := range endpoints {
		errs = append(errs, e.Stop(stopCtx))
	}
	return errors.Join(errs...)
}
