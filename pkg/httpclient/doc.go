// Package httpclient はpestsignal APIのGoクライアントを提供する。
//
// ログイン（暗黙の登録を含む）、プロフィール参照、画像アップロードを
// 型付きのメソッドとして呼び出せる。2xx以外の応答は*APIErrorとして返す。
package httpclient
