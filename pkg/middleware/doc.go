// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWTの発行と検証、Bearerトークン認証、パニックリカバリ、
// CORS設定など、pestsignalのHTTPサーバーが共通して使用する処理を含む。
package middleware
