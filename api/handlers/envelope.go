package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/graph"
	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

// RequestIDHeader 由请求 ID 中间件写入响应头，信封从这里读取
const RequestIDHeader = "X-Request-ID"

// Envelope 所有 JSON 接口的外层结构。失败时 Data 仍可能带有部分结果，例如失败的运行。
type Envelope struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *Problem  `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Problem 失败原因
type Problem struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// WriteJSON 以 status 写出 v；头发出后编码失败不再处理
func WriteJSON(w http.ResponseWriter, status int, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func seal(w http.ResponseWriter, data any, p *Problem) Envelope {
	return Envelope{
		Success:   p == nil,
		Data:      data,
		Error:     p,
		Timestamp: time.Now().UTC(),
		RequestID: w.Header().Get(RequestIDHeader),
	}
}

// WriteSuccess 200 + 成功信封
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, seal(w, data, nil))
}

// WriteError 按错误码选择状态码（显式 HTTPStatus 优先）。5xx 记 Error，其余记 Warn。
func WriteError(w http.ResponseWriter, err *types.Error, logger *zap.Logger) {
	writeFailure(w, err, nil, logger)
}

// WriteEngineError 引擎、审批与检查点错误先归类为 types.Error
func WriteEngineError(w http.ResponseWriter, err error, data any, logger *zap.Logger) {
	writeFailure(w, graph.ToTypedError(err), data, logger)
}

func badRequest(w http.ResponseWriter, msg string, logger *zap.Logger) {
	WriteError(w, types.NewError(types.ErrInvalidRequest, msg), logger)
}

func writeFailure(w http.ResponseWriter, err *types.Error, data any, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = types.StatusFor(err.Code)
	}
	p := &Problem{Code: string(err.Code), Message: err.Message, Retryable: err.Retryable}
	var verrs validator.ValidationErrors
	if errors.As(err.Cause, &verrs) {
		p.Details = explain(verrs)
	}

	if logger != nil {
		log := logger.Warn
		if status >= http.StatusInternalServerError {
			log = logger.Error
		}
		log("request failed",
			zap.String("code", p.Code),
			zap.Int("status", status),
			zap.Bool("retryable", p.Retryable),
			zap.String("message", p.Message),
			zap.Error(err.Cause),
		)
	}
	WriteJSON(w, status, seal(w, data, p))
}
