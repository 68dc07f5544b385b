package index

import (
	"context"
	"errors"
	"log/slog"

	"github.com/WessleyAI/docsearch/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

const (
	// IndexSubject carries Requests from the sync orchestrator.
	IndexSubject = "docs.index"
	// DeleteSubject carries DeleteRequests.
	DeleteSubject = "docs.delete"
	// FailedSubject receives a Failure for every request that could not be
	// processed.
	FailedSubject = "docs.index.failed"
	// QueueGroup spreads requests across indexer replicas.
	QueueGroup = "docsearch-indexer"
)

// Consumer subscribes an Indexer to the indexing subjects. Requests sent with
// a reply subject are answered with their Outcome.
type Consumer struct {
	nc   *nats.Conn
	ix   *Indexer
	subs []*nats.Subscription
	log  *slog.Logger
}

// StartConsumer subscribes ix to IndexSubject and DeleteSubject.
func StartConsumer(nc *nats.Conn, ix *Indexer) (*Consumer, error) {
	c := &Consumer{nc: nc, ix: ix, log: ix.log}

	sub, err := natsutil.Handle(nc, IndexSubject, QueueGroup, c.handleIndex)
	if err != nil {
		return nil, err
	}
	c.subs = append(c.subs, sub)

	sub, err = natsutil.Handle(nc, DeleteSubject, QueueGroup, c.handleDelete)
	if err != nil {
		c.Stop()
		return nil, err
	}
	c.subs = append(c.subs, sub)
	return c, nil
}

func (c *Consumer) handleIndex(ctx context.Context, req Request) (Outcome, error) {
	out, err := c.ix.IndexPage(ctx, req)
	if err != nil {
		c.fail(ctx, IndexSubject, req.Page.PageID, err)
	}
	return out, err
}

func (c *Consumer) handleDelete(ctx context.Context, req DeleteRequest) (Outcome, error) {
	out, err := c.ix.DeletePage(ctx, req.PageID)
	if err != nil {
		c.fail(ctx, DeleteSubject, req.PageID, err)
	}
	return out, err
}

func (c *Consumer) fail(ctx context.Context, subject, pageID string, err error) {
	f := Failure{Subject: subject, PageID: pageID, Error: err.Error()}
	if perr := natsutil.Publish(ctx, c.nc, FailedSubject, f); perr != nil {
		c.log.Error("index: failure publish failed", "page_id", pageID, "error", perr)
	}
}

// Stop drains the consumer's subscriptions.
func (c *Consumer) Stop() error {
	var errs []error
	for _, s := range c.subs {
		if err := s.Drain(); err != nil {
			errs = append(errs, err)
		}
	}
	c.subs = nil
	return errors.Join(errs...)
}
