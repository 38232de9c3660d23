package security

import "testing"

// TestSanitizeText_StripsAllTags は商品名からHTMLタグが全て除去されることを検証する。
func TestSanitizeText_StripsAllTags(t *testing.T) {
	s := NewSuggestionSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "VF 8 Plus", "VF 8 Plus"},
		{"scriptタグ除去", `VF 8 <script>alert(1)</script>`, "VF 8"},
		{"装飾タグ除去", "<strong>VF 9</strong> Eco", "VF 9 Eco"},
		{"imgタグ除去", `<img src=x onerror=alert(1)>VF 5`, "VF 5"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeText(tt.input); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitizeText_Idempotent は同一入力に対して常に同一出力となることを検証する。
func TestSanitizeText_Idempotent(t *testing.T) {
	s := NewSuggestionSanitizer()

	input := `<b>VF 8</b> <script>x</script>Plus`
	first := s.SanitizeText(input)
	second := s.SanitizeText(first)

	if first != second {
		t.Errorf("not idempotent: first = %q, second = %q", first, second)
	}
}

// TestSanitizeImageURL はhttp/httpsの絶対URLのみが通過することを検証する。
func TestSanitizeImageURL(t *testing.T) {
	s := NewSuggestionSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"https絶対URL", "https://cdn.example.com/vf8.webp", "https://cdn.example.com/vf8.webp"},
		{"http絶対URL", "http://cdn.example.com/vf8.webp", "http://cdn.example.com/vf8.webp"},
		{"javascriptスキーム拒否", "javascript:alert(1)", ""},
		{"dataスキーム拒否", "data:text/html;base64,PHNjcmlwdD4=", ""},
		{"相対URL拒否", "/images/vf8.webp", ""},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeImageURL(tt.input); got != tt.want {
				t.Errorf("SanitizeImageURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
