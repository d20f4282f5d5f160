package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/labkeeper/internal/types"
	"github.com/user/labkeeper/internal/workflow"
)

func init() {
	rootCmd.AddCommand(replCmd)
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Chat with the agent in the terminal",
	Args:  cobra.NoArgs,
	RunE:  runRepl,
}

func runRepl(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	in := bufio.NewReader(os.Stdin)
	fmt.Print("Session name (enter for default): ")
	name, err := in.ReadString('\n')
	if err != nil && name == "" {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}

	key := types.NewSessionKey("repl", "local", name)
	sessionID, err := app.store.Sessions().ResolveOrCreate(ctx, key, "repl", "local")
	if err != nil {
		return fmt.Errorf("resolve session: %w", err)
	}
	app.logger.Info("repl session ready",
		zap.String("session_key", string(key)),
		zap.String("session_id", string(sessionID)))

	operator := workflow.NewTerminalOperator(in, os.Stdout)
	orch := app.orch(operator)

	fmt.Println("Type a request, or \"exit\" to quit.")
	for {
		fmt.Print("you > ")
		line, err := in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}
		if text == "exit" {
			return nil
		}

		status, err := orch.RunTurn(ctx, sessionID, "local", text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			continue
		}
		app.logger.Info("turn finished", zap.String("status", string(status)))
	}
}
