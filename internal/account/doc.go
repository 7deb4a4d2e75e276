// Package account はユーザー名とPINで識別されるアカウントの永続化を提供する。
//
// Storeインターフェースはユーザー名による検索と新規作成のみを持ち、
// ユーザー名の一意性はストア実装（SQLの一意インデックス、RedisのSETNX、
// インメモリのミューテックス付きマップ）が保証する。
package account
