package llmutils

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/deepscifi/guide/internal/schema"
	"github.com/deepscifi/guide/internal/shared/stringutils"
)

var reThink = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink removes <think>…</think> blocks that some models embed and
// trims the surrounding whitespace.
func StripThink(s string) string {
	return strings.TrimSpace(reThink.ReplaceAllString(s, ""))
}

// ToolHint generates a short hint string for a list of tool calls, e.g. `search_worlds("megacit")`.
// The first string argument in key order is shown.
func ToolHint(tcs []schema.ToolCall) string {
	parts := make([]string, 0, len(tcs))
	for _, tc := range tcs {
		keys := make([]string, 0, len(tc.Arguments))
		for k := range tc.Arguments {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var firstVal string
		for _, k := range keys {
			if s, ok := tc.Arguments[k].(string); ok && s != "" {
				firstVal = s
				break
			}
		}
		if firstVal == "" {
			parts = append(parts, tc.Name)
			continue
		}
		if len([]rune(firstVal)) > 40 {
			firstVal = stringutils.Clip(firstVal, 40) + "…"
		}
		parts = append(parts, fmt.Sprintf("%s(%q)", tc.Name, firstVal))
	}
	return strings.Join(parts, ", ")
}
