// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// SuggestionSanitizerService は上流コマースAPIから受け取った商品サジェストを
// ブラウザへ返す前に無害化するインターフェースを定義する。
// 上流レスポンスにHTMLタグやスクリプトが混入していた場合のXSSを防ぐ。
type SuggestionSanitizerService interface {
	// SanitizeText は商品名・スラッグからHTMLタグを全て除去したプレーンテキストを返す。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す（冪等）。
	SanitizeText(raw string) string

	// SanitizeImageURL は画像URLを検証し、http/httpsの絶対URLのみを通過させる。
	// それ以外（javascript:, data:, 相対URL等）は空文字列に落とす。
	SanitizeImageURL(raw string) string
}

// suggestionSanitizer はSuggestionSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type suggestionSanitizer struct {
	policy *bluemonday.Policy
}

// NewSuggestionSanitizer はSuggestionSanitizerServiceの新しいインスタンスを生成する。
// 商品名はマークアップを一切含まない想定のため、全タグを除去する
// StrictPolicyを使用する。
func NewSuggestionSanitizer() *suggestionSanitizer {
	return &suggestionSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeText は商品名・スラッグからHTMLタグを全て除去したプレーンテキストを返す。
func (s *suggestionSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(s.policy.Sanitize(raw))
}

// SanitizeImageURL は画像URLを検証し、http/httpsの絶対URLのみを通過させる。
func (s *suggestionSanitizer) SanitizeImageURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	if parsed.Host == "" {
		return ""
	}

	return parsed.String()
}

// compile-time interface check
var _ SuggestionSanitizerService = (*suggestionSanitizer)(nil)
