package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/deepscifi/guide/internal/agent"
	"github.com/deepscifi/guide/internal/events"
	"github.com/deepscifi/guide/internal/session"
	"github.com/deepscifi/guide/internal/shared/cmdutils"
)

var (
	askMessage string
	askLogs    bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Talk to the guide from the terminal",
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askMessage, "message", "m", "", "Send a single message and exit")
	askCmd.Flags().BoolVar(&askLogs, "logs", false, "Show runtime logs")
}

var exitCommands = map[string]bool{
	"exit":  true,
	"quit":  true,
	"/exit": true,
	"/quit": true,
	":q":    true,
}

func runAsk(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logs := io.Discard
	if askLogs {
		logs = os.Stderr
	}
	cfg, c, err := openContainer(ctx, logs)
	if err != nil {
		return err
	}
	defer c.Close(context.Background())

	g, err := c.Guide()
	if err != nil {
		return err
	}
	conv := session.NewConversation("cli:" + uuid.NewString())
	window := cfg.Agent.HistoryWindow

	if askMessage != "" {
		askOnce(ctx, g, conv, window, askMessage)
		return nil
	}

	fmt.Printf("%s Interactive mode (type 'exit' or Ctrl+C to quit)\n\n", logo)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			fmt.Println("\nGoodbye!")
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exitCommands[strings.ToLower(line)] {
			fmt.Println("Goodbye!")
			return nil
		}
		askOnce(ctx, g, conv, window, line)
		if ctx.Err() != nil {
			fmt.Println("\nGoodbye!")
			return nil
		}
	}
}

// askOnce runs one turn, printing each intermediate snapshot as it arrives.
func askOnce(ctx context.Context, g *agent.Guide, conv *session.Conversation, window int, text string) {
	end := conv.BeginTurn()
	defer end()

	conv.AddUser(text)
	state := conv.State()
	stream := g.RunTurn(ctx, agent.TurnRequest{
		RunID:          uuid.NewString(),
		ConversationID: conv.Key,
		History:        conv.History(window),
		State:          &state,
	})

	fmt.Fprintf(os.Stderr, "  ↳ thinking...\n")
	for ev := range stream.Events() {
		if !ev.Terminal {
			printSnapshot(ev)
		}
	}

	out := stream.Outcome()
	conv.SetState(out.State)
	if out.Kind == events.OutcomeCancelled {
		return
	}
	conv.AddAssistant(out.Narration)
	cmdutils.PrintResponse(out.Narration)
	if out.Kind != events.OutcomeCompleted {
		fmt.Fprintf(os.Stderr, "  (turn ended: %s)\n", out.Kind)
	}
}

func printSnapshot(ev events.Event) {
	kinds := make([]string, 0, len(ev.Snapshot.Panels))
	for _, p := range ev.Snapshot.Panels {
		kinds = append(kinds, string(p.Kind))
	}
	fmt.Fprintf(os.Stderr, "  ↳ %s: %s [%s]\n",
		ev.Tool, strings.Join(ev.Snapshot.Breadcrumbs, " › "), strings.Join(kinds, ", "))
}
