package handlers

import (
	"bufio"
	"net"
	"net/http"
)

// StatusRecorder 记录状态码与写出的字节数，供访问日志、指标与追踪中间件使用。
// Flush 与 Hijack 透传给底层连接，SSE 与 WebSocket 可以穿过它。
type StatusRecorder struct {
	http.ResponseWriter
	Status  int
	Bytes   int64
	started bool
}

func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
}

// Started 头是否已发出
func (s *StatusRecorder) Started() bool { return s.started }

func (s *StatusRecorder) WriteHeader(code int) {
	if s.started {
		return
	}
	s.started = true
	s.Status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *StatusRecorder) Write(b []byte) (int, error) {
	s.WriteHeader(http.StatusOK)
	n, err := s.ResponseWriter.Write(b)
	s.Bytes += int64(n)
	return n, err
}

func (s *StatusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func (s *StatusRecorder) Flush() {
	s.WriteHeader(http.StatusOK)
	_ = http.NewResponseController(s.ResponseWriter).Flush()
}

func (s *StatusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	conn, rw, err := http.NewResponseController(s.ResponseWriter).Hijack()
	if err != nil {
		return nil, nil, err
	}
	s.started = true
	s.Status = http.StatusSwitchingProtocols
	return conn, rw, nil
}
