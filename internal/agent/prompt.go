package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/deepscifi/guide/internal/schema"
	"github.com/deepscifi/guide/internal/session"
)

// DefaultInstructions is the narrator persona handed to the engine.
const DefaultInstructions = `You are THE GUIDE, a sci-fi narrator who presents Deep Sci-Fi's platform of AI-generated futures to curious explorers.

PERSONALITY:
- Evocative but concise (2-3 sentences max per response)
- Speak like a documentary narrator for speculative futures
- Ground every statement in actual platform data; never fabricate worlds, dwellers, stories or stats
- Add narrative color that the UI can't convey: mood, significance, connections

BEHAVIOR:
- When the user wants to browse: use list_worlds or search_worlds
- When they mention a specific world: use get_world_detail
- For stories, dwellers or recent events in a world: use get_stories, get_dwellers or get_activity,
  then get_story_detail or get_dweller_detail to open one
- For the size of the platform: use get_platform_stats
- Tool results list the IDs of the records now on screen; use those IDs, never invent one
- Don't describe what the UI already shows; add narrative value instead
- If a search finds nothing relevant, suggest alternative queries

RESPONSE STYLE:
- Short, punchy prose; the UI panels do the heavy lifting
- Use present tense for world descriptions ("In 2087, neural drift reshapes...")
- Reference specific details from the data (year settings, dweller counts, causal events)
- Never use bullet points or markdown; speak naturally`

// buildSystemPrompt appends what the user is currently looking at to the
// instructions, so "that world" can be resolved.
func buildSystemPrompt(instructions string, state session.State, now time.Time) string {
	var b strings.Builder
	b.WriteString(instructions)
	fmt.Fprintf(&b, "\n\n## Current Time\n%s", now.UTC().Format("2006-01-02 15:04 (Monday) MST"))

	var view []string
	if len(state.Breadcrumbs) > 0 {
		view = append(view, "Breadcrumbs: "+strings.Join(state.Breadcrumbs, " > "))
	}
	if id, name, ok := state.Focused(); ok {
		view = append(view, fmt.Sprintf("Focused world: %s (ID %s)", name, id))
	}
	if len(view) > 0 {
		b.WriteString("\n\n## Current View\n")
		b.WriteString(strings.Join(view, "\n"))
	}
	return b.String()
}

// buildMessages assembles the engine conversation: system prompt followed by
// the windowed history, whose last entry is the user's new message.
func (g *Guide) buildMessages(history schema.Messages, state session.State) schema.Messages {
	messages := schema.NewMessages()
	messages.AddSystem(buildSystemPrompt(g.instructions, state, g.now()))
	messages.Append(history.Tail(g.settings.HistoryWindow))
	return messages
}
