package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// tokenIssuer はJWTのissクレームに設定する発行者名。
const tokenIssuer = "pestsignal-gateway"

// contextKeyClaims は検証済みクレームをGinコンテキストに格納するキー。
const contextKeyClaims = "claims"

var (
	// ErrMissingToken はトークンが指定されていないことを表す。
	ErrMissingToken = errors.New("token is missing")
	// ErrInvalidToken は署名不正・期限切れ等でトークンを受け付けられないことを表す。
	ErrInvalidToken = errors.New("token is invalid")
)

// Claims はJWTトークンのクレーム（ペイロード）を表す。
// アカウントIDとユーザー名を後続のハンドラに伝播するために使用する。
type Claims struct {
	jwt.RegisteredClaims
	// UserID は認証済みアカウントの一意識別子。
	UserID string `json:"userId"`
	// Username はアカウントのユーザー名。
	Username string `json:"username"`
}

// GenerateJWT はアカウント情報からHS256で署名したJWTトークンを生成する。
// jtiにはトークンごとに新しいUUIDを設定するため、同一秒内の発行でも値が重複しない。
func GenerateJWT(secret, userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID:   userID,
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseJWT はトークン文字列を検証し、クレームを返す。
// 空文字列はErrMissingToken、それ以外の検証失敗はErrInvalidTokenをラップして返す。
func ParseJWT(secret, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TokenVerifier はBearerトークンを検証してクレームを返す。
type TokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

// VerifierFunc は関数をTokenVerifierとして扱うためのアダプタ。
type VerifierFunc func(tokenString string) (*Claims, error)

// Verify はf(tokenString)を呼び出す。
func (f VerifierFunc) Verify(tokenString string) (*Claims, error) {
	return f(tokenString)
}

// SecretVerifier は共有シークレットでトークンを検証するTokenVerifierを返す。
func SecretVerifier(secret string) TokenVerifier {
	return VerifierFunc(func(tokenString string) (*Claims, error) {
		return ParseJWT(secret, tokenString)
	})
}

// JWTAuth はBearerトークンを検証するGinミドルウェアを返す。
// トークンが無い場合（Bearer以外のスキームを含む）は401、検証に失敗した場合は403で中断する。
// 検証に成功した場合、コンテキストにクレームと "user_id" を設定する。
func JWTAuth(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := verifier.Verify(bearerToken(c.GetHeader("Authorization")))
		if errors.Is(err, ErrMissingToken) {
			abortWithError(c, http.StatusUnauthorized, "Access denied", "No token provided")
			return
		}
		if err != nil {
			abortWithError(c, http.StatusForbidden, "Invalid token", "Token is not valid")
			return
		}

		c.Set(contextKeyClaims, claims)
		c.Set("user_id", claims.UserID)
		c.Next()
	}
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// スキーム名の大文字小文字は区別しない（RFC 7235）。Bearer以外のスキームは空文字列を返す。
func bearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// GetUserID はGinコンテキストからユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetClaims はJWTAuthミドルウェアが設定したクレームを取得する。
// 設定されていない場合はnilを返す。
func GetClaims(c *gin.Context) *Claims {
	v, _ := c.Get(contextKeyClaims)
	if claims, ok := v.(*Claims); ok {
		return claims
	}
	return nil
}
