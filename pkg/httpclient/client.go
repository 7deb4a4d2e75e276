package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Client はpestsignal APIのHTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL は接続先サーバーのベースURL。
	baseURL string
}

// New は新しいクライアントを生成する。
// baseURLには接続先サーバーのベースURL（例: "http://localhost:8001"）を指定する。
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// APIError は2xx以外の応答を表す。
type APIError struct {
	// StatusCode はHTTPステータスコード。
	StatusCode int
	// Code はレスポンスのerrorフィールド（例: "Invalid credentials"）。
	Code string
	// Message はレスポンスのmessageフィールド。
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("APIエラー: status=%d, error=%q, message=%q", e.StatusCode, e.Code, e.Message)
}

// User はログイン応答に含まれるアカウント情報。
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// LoginResponse はPOST /auth/loginの応答。
type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    User   `json:"user"`
}

// TokenClaims はトークンに含まれるクレーム。
type TokenClaims struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	ID        string `json:"jti"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// ProfileResponse はGET /auth/profileの応答。
type ProfileResponse struct {
	Message string      `json:"message"`
	User    TokenClaims `json:"user"`
}

// UploadedFile は保存された画像のメタデータ。
type UploadedFile struct {
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimetype"`
	Path         string `json:"path"`
}

// UploadResponse はPOST /api/uploadの応答。
type UploadResponse struct {
	Message string       `json:"message"`
	File    UploadedFile `json:"file"`
}

// Login はユーザー名とPINでログインする。未登録のユーザー名の場合はサーバー側で登録される。
func (c *Client) Login(ctx context.Context, username, pin string) (*LoginResponse, error) {
	body, err := json.Marshal(map[string]string{"username": username, "pin": pin})
	if err != nil {
		return nil, fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/auth/login", "", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp LoginResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profile はトークンのクレームを取得する。
func (c *Client) Profile(ctx context.Context, token string) (*ProfileResponse, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/auth/profile", token, nil)
	if err != nil {
		return nil, err
	}

	var resp ProfileResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UploadImage はrの内容を "image" フィールドとしてアップロードする。
// mimeTypeはパートのContent-Typeとして送信される。
func (c *Client) UploadImage(ctx context.Context, token, filename, mimeType string, r io.Reader) (*UploadResponse, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, filename))
		h.Set("Content-Type", mimeType)
		part, err := mw.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/api/upload", token, pr)
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp UploadResponse
	if err := c.do(req, &resp); err != nil {
		_ = pr.Close()
		return nil, err
	}
	return &resp, nil
}

// newRequest はベースURLとトークンを設定したリクエストを作成する。
func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do はリクエストを送信し、2xxの場合はresultにデシリアライズする。
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			apiErr.Code = body.Error
			apiErr.Message = body.Message
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
	}
	return nil
}
