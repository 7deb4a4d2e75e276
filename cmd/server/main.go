// pestsignalサーバーのエントリポイント。
// ユーザー名とPINによるログイン、トークン発行、認証済み画像アップロードを提供する。
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(serve, migrate).Execute(); err != nil {
		os.Exit(1)
	}
}
