package prompt

import (
	"fmt"
	"strings"

	"github.com/hpungsan/bundler/internal/content"
)

// BlockSeparator joins content blocks in previews and combined content.
const BlockSeparator = "\n---\n\n"

// Preview renders one labeled block per item, in the given order, with a placeholder
// where the extracted text is substituted at processing time.
func Preview(items []content.Item) string {
	blocks := make([]string, len(items))
	for i, item := range items {
		title := blockTitle(item, i+1)
		blocks[i] = formatBlock(title, item.SourceType,
			fmt.Sprintf("[Extracted text from %s is inserted at processing time]", title))
	}
	return strings.Join(blocks, BlockSeparator)
}

// Combined renders the same blocks as Preview with the extracted text in place of the
// placeholder. texts is keyed by item id; items without text get a marker line.
func Combined(items []content.Item, texts map[string]string) string {
	blocks := make([]string, len(items))
	for i, item := range items {
		body, ok := texts[item.ID]
		if !ok || strings.TrimSpace(body) == "" {
			body = "[No extracted text available]"
		}
		blocks[i] = formatBlock(blockTitle(item, i+1), item.SourceType, body)
	}
	return strings.Join(blocks, BlockSeparator)
}

// Expand substitutes the combined content for the placeholder preview inside a
// prompt composed from Preview(items). It reports false when the preview is not
// present, in which case composed is returned unchanged.
func Expand(composed string, items []content.Item, texts map[string]string) (string, bool) {
	preview := Preview(items)
	if preview == "" || !strings.Contains(composed, preview) {
		return composed, false
	}
	return strings.Replace(composed, preview, Combined(items, texts), 1), true
}

func formatBlock(title, sourceType, body string) string {
	return fmt.Sprintf("=== %s ===\nSource: %s\n%s", title, sourceType, body)
}

// blockTitle resolves title, then url, then "Content N" for 1-based position n.
func blockTitle(item content.Item, n int) string {
	if t := item.Metadata.TitleOrEmpty(); t != "" {
		return t
	}
	if u := item.Metadata.URLOrEmpty(); u != "" {
		return u
	}
	return fmt.Sprintf("Content %d", n)
}

// listTitle resolves title, then url, then "Untitled".
func listTitle(item content.Item) string {
	if t := item.Metadata.TitleOrEmpty(); t != "" {
		return t
	}
	if u := item.Metadata.URLOrEmpty(); u != "" {
		return u
	}
	return "Untitled"
}

// Resolve returns the items whose ids appear in ids, in ids order. Unknown ids are skipped.
func Resolve(ids []string, items []content.Item) []content.Item {
	byID := make(map[string]content.Item, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	resolved := make([]content.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			resolved = append(resolved, item)
		}
	}
	return resolved
}
