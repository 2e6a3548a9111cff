package mcp

import (
	"context"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"lorekeeper/internal/reconcile"
	"lorekeeper/internal/session"
	"lorekeeper/internal/store"
)

// Server exposes review sessions and the knowledge base as MCP tools.
type Server struct {
	sessions   *session.Manager
	db         store.Store
	classifier *reconcile.Classifier
	mcp        *sdk.Server
}

func NewServer(sessions *session.Manager, db store.Store, classifier *reconcile.Classifier, version string) *Server {
	s := &Server{
		sessions:   sessions,
		db:         db,
		classifier: classifier,
		mcp: sdk.NewServer(&sdk.Implementation{
			Name:    "lorekeeper",
			Version: version,
		}, nil),
	}
	s.registerTools()
	return s
}

func (s *Server) Run(ctx context.Context, transport sdk.Transport) error {
	return s.mcp.Run(ctx, transport)
}
