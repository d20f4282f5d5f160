package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/labkeeper/internal/delivery"
	"github.com/user/labkeeper/internal/gateway"
	"github.com/user/labkeeper/internal/telegram"
	"github.com/user/labkeeper/internal/workflow"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the labkeeper daemon",
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, "labkeeper.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	pidPath, err := writePIDFile(app.cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	deliveryReg := delivery.NewRegistry()

	gw := gateway.New(app.store.Sessions(), app.logger, int64(app.cfg.MaxConcurrent))
	gw.Queue.SetProcessor(func(turn *gateway.Turn) error {
		session, err := app.store.Sessions().Get(turn.Ctx, turn.SessionID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		operator := delivery.NewOperator(turn.Ctx, deliveryReg, session.SessionKey)
		orch := app.orch(operator)
		status, err := orch.RunTurn(turn.Ctx, turn.SessionID, turn.UserID, turn.Text)
		if err != nil {
			return err
		}
		if turn.OnComplete != nil {
			turn.OnComplete(string(status))
		}
		return nil
	})

	gw.Start(ctx)
	defer gw.Stop()

	app.logger.Info("labkeeper started",
		zap.String("data_dir", app.cfg.DataDir),
		zap.String("lab_db", app.cfg.Lab.DBPath),
		zap.Int("max_concurrent", app.cfg.MaxConcurrent),
		zap.Int("max_tool_rounds", app.cfg.MaxToolRounds),
		zap.String("llm_model", app.cfg.LLM.Model),
		zap.String("pid_file", pidPath))

	if app.cfg.Telegram.Token != "" {
		adapter, err := telegram.New(app.cfg.Telegram.Token, gw,
			app.store.Events(), app.store.Sessions(), app.logger)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		deliveryReg.Register("telegram:", adapter)
		go adapter.Start(ctx)
		app.logger.Info("telegram adapter started")
	} else {
		app.logger.Warn("telegram adapter disabled (no token)")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			app.logger.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				app.logger.Error("get executable path", zap.Error(err))
				continue
			}
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				app.logger.Error("re-exec failed", zap.Error(err))
				if _, writeErr := writePIDFile(app.cfg.DataDir); writeErr != nil {
					app.logger.Error("re-write PID file", zap.Error(writeErr))
				}
				continue
			}
		}
		app.logger.Info("shutting down", zap.String("signal", sig.String()))
		return nil
	}
}

var _ workflow.Operator = (*delivery.Operator)(nil)
