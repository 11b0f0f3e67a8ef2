package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dexterhq/dexter/internal/agent"
)

func chatCmd() *cobra.Command {
	var sessionKey string

	cmd := &cobra.Command{
		Use:   "chat [query]",
		Short: "Run a query, or start an interactive chat",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			rt, err := buildRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.shutdown()

			if len(args) == 1 {
				return runQuery(ctx, rt, args[0], sessionKey)
			}
			return runREPL(ctx, rt, sessionKey)
		},
	}
	cmd.Flags().StringVarP(&sessionKey, "session", "s", "", "session id or key to persist history under")
	return cmd
}

// runQuery executes one query, streaming progress to stderr and the
// answer to stdout.
func runQuery(ctx context.Context, rt *runtime, query, sessionKey string) error {
	for ev := range rt.agent.Run(ctx, query, sessionKey) {
		switch e := ev.(type) {
		case agent.ThinkingEvent:
			fmt.Fprintf(os.Stderr, "· %s\n", e.Message)
		case agent.ToolStartEvent:
			fmt.Fprintf(os.Stderr, "→ %s\n", e.Tool)
		case agent.ToolEndEvent:
			fmt.Fprintf(os.Stderr, "✓ %s (%dms)\n", e.Tool, e.Duration)
		case agent.ToolErrorEvent:
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", e.Tool, e.Error)
		case agent.ToolLimitEvent:
			fmt.Fprintf(os.Stderr, "! %s\n", e.Warning)
		case agent.DoneEvent:
			fmt.Println(e.Answer)
		case agent.ErrorEvent:
			return fmt.Errorf("%s", e.Error)
		}
	}
	return nil
}

func runREPL(ctx context.Context, rt *runtime, sessionKey string) error {
	if sessionKey == "" {
		sessionKey = "cli"
	}
	fmt.Fprintf(os.Stderr, "Dexter — model %s, session %s\n", rt.cfg.Provider.Model, sessionKey)
	fmt.Fprintln(os.Stderr, `Type "exit" to quit.`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fmt.Fprint(os.Stderr, "\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}

		if err := runQuery(ctx, rt, input, sessionKey); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}
