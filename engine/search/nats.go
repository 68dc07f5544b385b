package search

import (
	"context"

	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const (
	// Subject serves searches over NATS request-reply.
	Subject = "docs.search"
	// QueueGroup spreads search requests across replicas.
	QueueGroup = "docsearch-search"
)

// Serve answers domain.SearchRequests on Subject with the engine.
func Serve(nc *nats.Conn, e *Engine) (*nats.Subscription, error) {
	return natsutil.Handle(nc, Subject, QueueGroup, func(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error) {
		return e.Search(ctx, req.Query, req.Config())
	})
}
