// Package natsutil provides typed NATS publish/subscribe/request helpers
// with OpenTelemetry trace propagation.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// ErrRemote wraps an error reported by the responder of a request.
var ErrRemote = errors.New("remote handler failed")

// Reply is the envelope written by Handle and read by Call.
type Reply[T any] struct {
	Data  T      `json:"data"`
	Error string `json:"error,omitempty"`
}

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

func newMsg[T any](ctx context.Context, subject string, v T) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

func msgContext(msg *nats.Msg) context.Context {
	return otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
}

// Publish serializes v as JSON and publishes to the given subject.
// Trace context from ctx is injected into NATS message headers.
func Publish[T any](ctx context.Context, nc *nats.Conn, subject string, v T) error {
	msg, err := newMsg(ctx, subject, v)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}

// Subscribe registers a handler that deserializes JSON messages of type T.
// Trace context is extracted from NATS message headers and passed to the handler.
// Malformed messages are silently dropped.
func Subscribe[T any](nc *nats.Conn, subject string, handler func(context.Context, T)) (*nats.Subscription, error) {
	return QueueSubscribe(nc, subject, "", handler)
}

// QueueSubscribe is Subscribe with a queue group, so each message reaches one
// member of the group. An empty queue is a plain subscription.
func QueueSubscribe[T any](nc *nats.Conn, subject, queue string, handler func(context.Context, T)) (*nats.Subscription, error) {
	return nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			return // drop malformed messages
		}
		handler(msgContext(msg), v)
	})
}

// Handle serves request-reply on subject. Each request is decoded into Req,
// passed to handler, and answered with a Reply envelope when the sender asked
// for one. Malformed requests are answered with an error reply.
func Handle[Req, Resp any](nc *nats.Conn, subject, queue string, handler func(context.Context, Req) (Resp, error)) (*nats.Subscription, error) {
	return nc.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		var (
			req   Req
			reply Reply[Resp]
		)
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			reply.Error = "malformed request: " + err.Error()
		} else {
			resp, err := handler(msgContext(msg), req)
			reply.Data = resp
			if err != nil {
				reply.Error = err.Error()
			}
		}
		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			data, _ = json.Marshal(Reply[Resp]{Error: err.Error()})
		}
		_ = msg.Respond(data)
	})
}

// Request sends a JSON-encoded request and decodes the response. The request
// is bounded by ctx, or nats.DefaultTimeout when ctx has no deadline.
func Request[Req, Resp any](ctx context.Context, nc *nats.Conn, subject string, req Req) (Resp, error) {
	var zero Resp
	msg, err := newMsg(ctx, subject, req)
	if err != nil {
		return zero, err
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nats.DefaultTimeout)
		defer cancel()
	}
	resp, err := nc.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return zero, err
	}
	var result Resp
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return zero, err
	}
	return result, nil
}

// Call sends a request to a Handle responder and unwraps its Reply. A
// responder-side error comes back wrapping ErrRemote.
func Call[Req, Resp any](ctx context.Context, nc *nats.Conn, subject string, req Req) (Resp, error) {
	reply, err := Request[Req, Reply[Resp]](ctx, nc, subject, req)
	if err != nil {
		var zero Resp
		return zero, err
	}
	if reply.Error != "" {
		return reply.Data, fmt.Errorf("%w: %s", ErrRemote, reply.Error)
	}
	return reply.Data, nil
}
