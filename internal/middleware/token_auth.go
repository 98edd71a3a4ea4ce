package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/hitoshi/dosekeeper/internal/model"
)

// NewTokenAuthMiddleware は静的APIトークンによるBearer認証ミドルウェアを返す。
// 単一利用者向けのサービスのため、ユーザー管理の代わりに環境変数で
// 設定された共有トークンで保護する。tokenが空の場合は認証を行わない
// （ローカル利用を想定）。
func NewTokenAuthMiddleware(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			got := bearerToken(r)
			// タイミング攻撃を避けるため定数時間比較を使用する
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				WriteErrorResponse(w, http.StatusUnauthorized, &model.APIError{
					Code:     "UNAUTHORIZED",
					Message:  "認証に失敗しました。",
					Category: "system",
					Action:   "APIトークンを確認してください。",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// 形式が不正な場合は空文字を返す。
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) < len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return auth[len(prefix):]
}
