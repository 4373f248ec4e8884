// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はWooCommerceの商品説明HTMLをMini Appへ返す前にサニタイズし、
// 利用者が入力したテキストをTelegramのHTMLメッセージへ埋め込む前に無害化する。
// bluemondayライブラリの許可リストベースのポリシーを使用する。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はHTMLサニタイズ機能のインターフェースを定義する。
type ContentSanitizer interface {
	// Sanitize は商品説明HTMLを許可タグのみに絞り込む。
	// imgのsrcはhttpsのみ許可し、aタグには target="_blank" と rel="noopener noreferrer" を付与する。
	Sanitize(rawHTML string) string

	// PlainText は全てのタグを除去し、HTMLエンティティをエスケープしたテキストを返す。
	// TelegramのHTMLパースモードのメッセージに埋め込める。
	PlainText(raw string) string
}

// contentSanitizer はContentSanitizerの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	description *bluemonday.Policy
	text        *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, ul, ol, li, h3, h4, strong, em, b, i, blockquote, table系, a, img
//   - script, iframe, style と全てのon*イベント属性は除去
//   - imgのsrc属性: httpsスキームのみ許可
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// WooCommerceのエディタが出力する一般的な装飾タグ
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"h3", "h4", "blockquote",
		"strong", "em", "b", "i",
		"table", "thead", "tbody", "tr", "th", "td",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{
		description: p,
		text:        bluemonday.StrictPolicy(),
	}
}

// Sanitize は商品説明HTMLをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return strings.TrimSpace(s.description.Sanitize(rawHTML))
}

// PlainText はタグを除去したエスケープ済みテキストを返す。
func (s *contentSanitizer) PlainText(raw string) string {
	return strings.TrimSpace(s.text.Sanitize(raw))
}
