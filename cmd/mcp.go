package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AzielCF/az-bulk/bulkmessage/domain/job"
	"github.com/AzielCF/az-bulk/core/config"
	"github.com/AzielCF/az-bulk/ui/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the scheduler MCP server using SSE",
	Long:  `Start an MCP (Model Context Protocol) server over Server-Sent Events so agents can inspect and control scheduled messages.`,
	Run:   mcpServer,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().String("port", "", "Port for the SSE MCP server")
	mcpCmd.Flags().String("host", "", "Host for the SSE MCP server")
}

func mcpServer(cmd *cobra.Command, _ []string) {
	cfg := config.Global
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.MCP.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.MCP.Host = host
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// No polling here: a manual execute runs in this process, a trigger reaches
	// the other pollers through Valkey.
	initApp(ctx, job.ModeServer, nil)

	mcpSrv := server.NewMCPServer(
		"Az-Bulk Scheduler MCP Server",
		cfg.App.Version,
		server.WithToolCapabilities(true),
	)

	schedulerHandler := mcp.InitMcpScheduler(scheduledUsecase)
	schedulerHandler.AddSchedulerTools(mcpSrv)

	sseServer := server.NewSSEServer(
		mcpSrv,
		server.WithBaseURL(fmt.Sprintf("http://%s:%s", cfg.MCP.Host, cfg.MCP.Port)),
		server.WithKeepAlive(true),
	)

	addr := fmt.Sprintf("%s:%s", cfg.MCP.Host, cfg.MCP.Port)
	logrus.Printf("[MCP] Starting SSE server on %s", addr)
	logrus.Printf("[MCP] SSE endpoint: http://%s/sse", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[MCP] Reception of termination signal, shutting down gracefully...")
		_ = sseServer.Shutdown(context.Background())
		StopApp()
		os.Exit(0)
	}()

	if err := sseServer.Start(addr); err != nil {
		logrus.Fatalf("Failed to start SSE server: %v", err)
	}
}
