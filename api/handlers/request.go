package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

// 请求体上限 1 MiB
const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 错误详情里使用 JSON 字段名
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bindJSON 要求 application/json，然后解码并校验。失败时已写出响应。
func bindJSON(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	media, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || media != "application/json" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json").
			WithHTTPStatus(http.StatusUnsupportedMediaType), logger)
		return false
	}
	return decodeBody(w, r, dst, logger)
}

// decodeBody 不检查 Content-Type；拒绝空体、未知字段与超限请求体
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) bool {
	if r.Body == nil || r.Body == http.NoBody {
		badRequest(w, "request body is empty", logger)
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON body"
		if tooLarge := (*http.MaxBytesError)(nil); errors.As(err, &tooLarge) {
			msg = fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)
		}
		WriteError(w, types.NewError(types.ErrInvalidRequest, msg).WithCause(err), logger)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "request validation failed").WithCause(err), logger)
		return false
	}
	return true
}

// explain 形如 "decision: oneof=approve reject; reason: max=5"
func explain(errs validator.ValidationErrors) string {
	var b strings.Builder
	for i, fe := range errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(fe.Field())
		b.WriteString(": ")
		b.WriteString(fe.Tag())
		if fe.Param() != "" {
			b.WriteString("=" + fe.Param())
		}
	}
	return b.String()
}
