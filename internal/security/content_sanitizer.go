// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService は投稿・編集されるタイトルと本文からHTMLを除去する。
// Redditのセルフポストはmarkdownのプレーンテキストなので、タグは一切残さない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はユーザー入力テキストのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize はすべてのHTMLタグを除去したプレーンテキストを返す。
	// script, styleなどの要素は中身ごと除去する。
	// 実体参照は元の文字に戻すため、markdownの記号（&, <, > など）はそのまま残る。
	// 前後の空白は取り除く。同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフなので共有してよい。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はbluemondayのStrictPolicyを使うサニタイザーを生成する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去したプレーンテキストを返す。
func (s *contentSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	// 除去後に実体参照を戻すとタグが復活しうるため、変化しなくなるまで繰り返す
	out := raw
	for i := 0; i < 3; i++ {
		next := html.UnescapeString(s.policy.Sanitize(out))
		if next == out {
			break
		}
		out = next
	}
	return strings.TrimSpace(out)
}
