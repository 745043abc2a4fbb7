package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mbrandt/parley/internal/bootstrap"
	"github.com/mbrandt/parley/internal/client"
	"github.com/mbrandt/parley/internal/config"
	"github.com/mbrandt/parley/internal/status"
	"github.com/mbrandt/parley/internal/wire"
	"github.com/mbrandt/parley/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	args, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		return err
	}

	if cfg.LogLevel != "" {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
	} else if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}

	if len(args) == 0 {
		printUsage()
		return nil
	}

	switch args[0] {
	case "health":
		return healthCommand(cfg)
	case "chat":
		if len(args) < 2 {
			return fmt.Errorf("usage: parley chat <message>")
		}
		return chatCommand(cfg, strings.Join(args[1:], " "))
	case "conversations":
		return conversationsCommand(cfg)
	case "version", "--version", "-v":
		fmt.Println("parley v0.4.2")
		return nil
	case "help", "--help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("parley", flag.ContinueOnError)
	server := fs.String("server", "", "daemon base URL (overrides config)")
	mock := fs.Bool("mock", false, "use the offline mock daemon")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *server != "" {
		cfg.ServerURL = *server
	}
	if *mock {
		cfg.Mock = true
	}
	if *debug {
		cfg.Debug = true
	}
	return fs.Args(), nil
}

// connect bootstraps a client per config: live first, mock fallback.
func connect(ctx context.Context, cfg *config.Config) (bootstrap.Result, *client.Supervisor, error) {
	var live client.DaemonClient
	if !cfg.Mock {
		live = client.NewLiveClient(client.LiveOptions{
			ServerURL: cfg.ServerURL,
			Token:     cfg.Token,
		})
	}

	res, err := bootstrap.Run(ctx, bootstrap.Options{Live: live})
	if err != nil {
		return bootstrap.Result{}, nil, err
	}
	if res.Mode == bootstrap.ModeMock && !cfg.Mock {
		fmt.Fprintln(os.Stderr, "warning: daemon unreachable, running offline against the mock")
	}

	policy := &client.ReconnectPolicy{
		BaseDelay:   cfg.Reconnect.BaseDelay(),
		MaxDelay:    cfg.Reconnect.MaxDelay(),
		MaxRetries:  cfg.Reconnect.MaxRetries,
		JitterRatio: cfg.Reconnect.JitterRatio,
	}
	sup := client.NewSupervisor(res.Client, policy)
	sup.Start()
	return res, sup, nil
}

func healthCommand(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, sup, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdown(res.Client, sup)

	report, err := res.Client.HealthCheck(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("mode:     %s\n", res.Mode)
	fmt.Printf("healthy:  %v\n", report.Healthy)
	fmt.Printf("daemon:   %s (contract %s)\n", report.Handshake.DaemonVersion, report.Handshake.ContractVersion)
	fmt.Printf("features: %s\n", strings.Join(report.Handshake.Capabilities, ", "))
	return nil
}

func chatCommand(cfg *config.Config, message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	res, sup, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdown(res.Client, sup)

	state := status.Initial()
	state = status.Reduce(state, status.UserSend{})

	send, err := res.Client.SendMessage(ctx, wire.SendMessageRequest{Content: message})
	if err != nil {
		state = status.Reduce(state, status.StreamError{Err: asClientError(err)})
		return err
	}
	state = status.Reduce(state, status.MessageAck{
		ConversationID: send.ConversationID,
		MessageID:      send.AssistantMessageID,
	})
	logger.Debugf("conversation %s, assistant message %s", send.ConversationID, send.AssistantMessageID)

	events, err := res.Client.StreamResponse(ctx, send.ConversationID, send.AssistantMessageID)
	if err != nil {
		return err
	}

	for ev := range events {
		prev := state.Phase
		state = status.Reduce(state, status.FromWire(ev))
		if prev != state.Phase {
			logger.Debugf("lifecycle: %s -> %s", prev, state.Phase)
		}
		if ev.T == wire.StreamDelta {
			fmt.Print(ev.Delta)
		}
	}
	fmt.Println()

	if state.Phase != status.PhaseComplete {
		return fmt.Errorf("stream ended in %s", state.Phase)
	}
	return nil
}

func conversationsCommand(cfg *config.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, sup, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer shutdown(res.Client, sup)

	conversations, err := res.Client.ListConversations(ctx)
	if err != nil {
		return err
	}
	if len(conversations) == 0 {
		fmt.Println("No conversations.")
		return nil
	}
	for _, conv := range conversations {
		updated := time.UnixMilli(conv.UpdatedAt).Format(time.RFC3339)
		fmt.Printf("%-12s %-40s %3d messages  %s\n", conv.ID, conv.Title, conv.MessageCount, updated)
	}
	return nil
}

func shutdown(c client.DaemonClient, sup *client.Supervisor) {
	sup.Stop()
	if err := c.Disconnect(context.Background()); err != nil {
		logger.Warnf("disconnect failed: %v", err)
	}
}

func asClientError(err error) *client.Error {
	if ce, ok := err.(*client.Error); ok {
		return ce
	}
	return client.Unavailablef("%v", err)
}

func printUsage() {
	fmt.Println(`parley - terminal chat session layer for the Parley daemon

Usage: parley [flags] <command>

Commands:
  chat <message>   Send a message and stream the response
  conversations    List conversations
  health           Probe daemon health and capabilities
  version          Print version
  help             Show this help

Flags:
  -server <url>    Daemon base URL (default from config or PARLEY_SERVER_URL)
  -mock            Use the offline mock daemon
  -debug           Enable debug logging

Environment:
  PARLEY_SERVER_URL, PARLEY_TOKEN, PARLEY_HOME_DIR, PARLEY_MOCK, PARLEY_DEBUG,
  PARLEY_LOG_LEVEL, PARLEY_RECONNECT_MAX_RETRIES`)
}
