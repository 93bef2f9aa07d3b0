package mcp

import (
	"context"

	mcp_server "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/m3ntallyilll/rrfff/pkg/tools/artalk"
	"github.com/m3ntallyilll/rrfff/pkg/workflow"
)

type Server struct {
	server    *mcp_server.MCPServer
	processor *workflow.Processor
	logger    *zap.Logger
	handler   *Handler
}

func NewServer(processor *workflow.Processor, logger *zap.Logger) (*Server, error) {
	mcpServer := mcp_server.NewMCPServer(
		"rap-battle-pipeline",
		"1.0.0",
		mcp_server.WithToolCapabilities(true),
		mcp_server.WithRecovery(),
	)

	// animate_speech needs the head-animation adapter; attach one when the
	// caller has not.
	if processor.Animator() == nil {
		animator, _ := artalk.NewAdapter(logger)
		processor.SetAnimator(animator)
	}

	s := &Server{
		server:    mcpServer,
		processor: processor,
		logger:    logger,
	}

	s.handler = NewHandler(s.server, processor, logger)
	s.handler.RegisterTools()

	return s, nil
}

func (s *Server) Start(ctx context.Context) error {
	// Serve over stdio so MCP clients can spawn this process directly.
	if err := mcp_server.ServeStdio(s.server); err != nil {
		s.logger.Error("Failed to start MCP server", zap.Error(err))
		return err
	}
	return nil
}

func (s *Server) GetToolNames() []string {
	return s.handler.GetToolNames()
}
