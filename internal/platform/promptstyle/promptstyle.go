package promptstyle

import "strings"

const marker = "STYLETAG_PROMPT_STYLE_V1"

// ApplySystem prepends a short guidance block to system prompts. Prompts that
// already carry the block are returned unchanged.
func ApplySystem(system string, mode string) string {
	base := strings.TrimSpace(system)
	if base == "" {
		return base
	}
	if strings.Contains(base, marker) {
		return base
	}
	mode = strings.ToLower(strings.TrimSpace(mode))

	var b strings.Builder
	b.WriteString(marker)
	b.WriteString("\nYou tag manuscript paragraphs for a publishing pipeline.")
	b.WriteString("\nFollow the system and user instructions precisely.")
	b.WriteString("\nUse only tags from the allowed list you are given.")
	b.WriteString("\nDo not add analysis or extra commentary.")
	if mode == "json" {
		b.WriteString("\nReturn only JSON. No markdown fences, no prose before or after it.")
	}
	b.WriteString("\n---\n")
	b.WriteString(base)
	return strings.TrimSpace(b.String())
}
