package provider

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/user/gopherfeed/internal/types"
)

// NormalizeContent converts HTML item bodies to markdown text in
// place, preserving the original under the "raw_html" metadata key.
// Items that do not look like HTML, or that fail conversion, are left
// untouched.
func NormalizeContent(item *types.Item) {
	if !looksLikeHTML(item.Content) {
		return
	}
	md, err := htmltomarkdown.ConvertString(item.Content)
	if err != nil {
		return
	}
	if item.Metadata == nil {
		item.Metadata = make(map[string]string, 1)
	}
	item.Metadata["raw_html"] = item.Content
	item.Content = strings.TrimSpace(md)
}

// looksLikeHTML is a cheap heuristic: an opening tag with a matching
// closing bracket somewhere after it.
func looksLikeHTML(s string) bool {
	open := strings.IndexByte(s, '<')
	if open < 0 {
		return false
	}
	return strings.IndexByte(s[open:], '>') > 0
}
