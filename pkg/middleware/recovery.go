package middleware

import (
	"log"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery はハンドラ内のパニックを500応答に変換するGinミドルウェアを返す。
// ログにはリクエストと認証済みユーザー、スタックトレースを出力し、応答には内部情報を含めない。
// 応答の書き込みが始まっている場合はステータスを変更できないため、処理の中断のみ行う。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log.Printf("[PANIC] %s %s user_id=%q: %v\n%s",
				c.Request.Method, c.Request.URL.Path, GetUserID(c), r, debug.Stack())

			if c.Writer.Written() {
				c.Abort()
				return
			}
			abortWithError(c, http.StatusInternalServerError, "Internal server error", "Something went wrong")
		}()
		c.Next()
	}
}

// abortWithError は {"error", "message"} 形式のJSONで応答して処理を中断する。
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}
