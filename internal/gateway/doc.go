// Package gateway はpestsignalのHTTPサーバーを提供する。
//
// ユーザー名とPINによるログイン（未登録の場合は暗黙の登録）、
// 発行したBearerトークンによるプロフィール参照、認証済みユーザーの
// 画像アップロードを公開する。外部からアクセス可能な唯一の境界であり、
// 全てのエラーを {"error", "message"} 形式のJSONに変換して返す。
package gateway
