package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kagan-sh/kagan-sub004/internal/config"
	"github.com/kagan-sh/kagan-sub004/internal/core"
	"github.com/kagan-sh/kagan-sub004/internal/ipc"
	"github.com/kagan-sh/kagan-sub004/internal/services/mcpfront"
)

var coreCmd = &cobra.Command{
	Use:   "core",
	Short: "Run or inspect the orchestration daemon",
}

var coreStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the orchestration daemon and block serving requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		serveMCP, _ := cmd.Flags().GetBool("mcp")
		return runCoreStart(serveMCP)
	},
}

func init() {
	coreStartCmd.Flags().Bool("mcp", false, "also bridge an MCP stdio tool server onto the running dispatcher")
	coreCmd.AddCommand(coreStartCmd)
}

func runCoreStart(serveMCP bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	live, err := ipc.HasLiveLease()
	if err != nil {
		return fmt.Errorf("check instance lease: %w", err)
	}
	if live {
		return fmt.Errorf("another kagan core instance already holds the instance lease")
	}
	if err := ipc.AcquireLease(); err != nil {
		return fmt.Errorf("acquire instance lease: %w", err)
	}
	defer ipc.ReleaseLease()

	c, err := core.New(cfg)
	if err != nil {
		return fmt.Errorf("construct core: %w", err)
	}
	if err := c.Start(); err != nil {
		return fmt.Errorf("start core: %w", err)
	}

	socketPath := filepath.Join(config.GetRuntimeDir(), "core.sock")
	transport, err := ipc.SelectTransport(socketPath, cfg.Transport.ForceTCP)
	if err != nil {
		return fmt.Errorf("select transport: %w", err)
	}
	listener, endpointInfo, err := transport.Listen()
	if err != nil {
		return fmt.Errorf("bind transport: %w", err)
	}

	bearerToken, err := randomHex(32)
	if err != nil {
		return fmt.Errorf("generate bearer token: %w", err)
	}

	server := ipc.NewServer(listener, c.Dispatcher, bearerToken)

	startedAt := time.Now().UTC()
	if err := ipc.WriteEndpoint(ipc.Endpoint{
		TransportType: endpointInfo.TransportType,
		Address:       endpointInfo.Address,
		Port:          endpointInfo.Port,
		HandshakeKey:  endpointInfo.HandshakeKey,
		BearerToken:   bearerToken,
		PID:           os.Getpid(),
		StartedAt:     startedAt.Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("write endpoint descriptor: %w", err)
	}
	defer ipc.RemoveEndpoint()

	if serveMCP {
		front := mcpfront.New(c.Dispatcher)
		go func() {
			if err := front.ServeStdio(); err != nil {
				log.Printf("core: mcp front door exited: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx) }()

	select {
	case <-ctx.Done():
		log.Printf("core: shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Printf("core: transport serve loop exited: %v", err)
		}
	}

	if err := server.Shutdown(); err != nil {
		log.Printf("core: server shutdown: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.Shutdown(shutdownCtx)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
