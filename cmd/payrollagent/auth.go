package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/FaresOuhachi/HR-Payroll-Agent/api/handlers"
	"github.com/FaresOuhachi/HR-Payroll-Agent/config"
	"github.com/FaresOuhachi/HR-Payroll-Agent/types"
)

// payrollClaims roles 决定调用者能否做出审批决定
type payrollClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// authenticator 校验 HS256 bearer 令牌
type authenticator struct {
	parser *jwt.Parser
	secret []byte
	exact  map[string]bool
	prefix []string
	logger *zap.Logger
}

func newAuthenticator(cfg config.AuthConfig, logger *zap.Logger) *authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	a := &authenticator{
		parser: jwt.NewParser(opts...),
		secret: []byte(cfg.JWTSecret),
		exact:  make(map[string]bool),
		logger: logger,
	}
	// 以 "/" 结尾的条目放行整个子树
	for _, p := range cfg.SkipPaths {
		if strings.HasSuffix(p, "/") {
			a.prefix = append(a.prefix, p)
		} else {
			a.exact[p] = true
		}
	}
	return a
}

func (a *authenticator) exempt(r *http.Request) bool {
	if r.Method == http.MethodOptions || a.exact[r.URL.Path] {
		return true
	}
	for _, p := range a.prefix {
		if strings.HasPrefix(r.URL.Path, p) {
			return true
		}
	}
	return false
}

func (a *authenticator) identify(r *http.Request) (types.Identity, *types.Error) {
	raw, ok := bearerToken(r)
	if !ok {
		return types.Identity{}, types.NewError(types.ErrUnauthorized, "missing or malformed Authorization header")
	}

	var claims payrollClaims
	_, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		if len(a.secret) == 0 {
			return nil, errors.New("signing secret not configured")
		}
		return a.secret, nil
	})
	if err != nil {
		a.logger.Debug("token rejected", zap.Error(err))
		msg := "invalid token"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "token expired"
		}
		return types.Identity{}, types.NewError(types.ErrUnauthorized, msg)
	}
	if claims.Subject == "" {
		return types.Identity{}, types.NewError(types.ErrUnauthorized, "token has no subject")
	}
	return types.Identity{Subject: claims.Subject, Roles: claims.Roles}, nil
}

// JWTAuth 令牌的 sub 与 roles 成为请求的调用者身份。SkipPaths 中的路径不校验。
func JWTAuth(cfg config.AuthConfig, logger *zap.Logger) Middleware {
	a := newAuthenticator(cfg, logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if a.exempt(r) {
				next.ServeHTTP(w, r)
				return
			}
			id, problem := a.identify(r)
			if problem != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="payroll-agent"`)
				handlers.WriteError(w, problem, logger)
				return
			}
			next.ServeHTTP(w, r.WithContext(types.WithIdentity(r.Context(), id)))
		})
	}
}

// bearerToken 浏览器的 EventSource 与 WebSocket 设置不了请求头，
// 事件流路径额外接受 access_token 查询参数
func bearerToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, tok, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", false
		}
		tok = strings.TrimSpace(tok)
		return tok, tok != ""
	}
	if isStreamPath(r.URL.Path) {
		if tok := r.URL.Query().Get("access_token"); tok != "" {
			return tok, true
		}
	}
	return "", false
}

func isStreamPath(path string) bool {
	return strings.HasPrefix(path, "/v1/sessions/") &&
		(strings.HasSuffix(path, "/events") || strings.HasSuffix(path, "/ws"))
}
