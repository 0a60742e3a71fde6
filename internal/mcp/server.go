// Package mcp serves the terminal tools to MCP clients.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/schovi/termtools/internal/tools"
)

const ServerName = "termtools"

type Server struct {
	server *mcpsdk.Server
	log    *zap.Logger
}

type Option func(*Server)

func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer registers every terminal tool against backend.
func NewServer(backend tools.Backend, version string, opts ...Option) *Server {
	s := &Server{log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	s.server = mcpsdk.NewServer(&mcpsdk.Implementation{Name: ServerName, Version: version}, nil)
	registerTools(s.server, &handlers{backend: backend, log: s.log})
	return s
}

// Run serves over stdin/stdout until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server starting")
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect serves a single session over an arbitrary transport.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}
