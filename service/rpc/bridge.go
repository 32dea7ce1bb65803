// Package rpc forwards client commands to the backend services as NATS
// request/reply calls on "<service>.<method>" subjects.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/service/natsx"
	"PPGateway/tools/errs"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	HeaderRequestID = "X-Request-Id"
	HeaderUserID    = "X-User-Id"

	emitTimeout = 2 * time.Second
)

// Transport is the part of *natsx.NatsxClient the bridge needs.
type Transport interface {
	Request(ctx context.Context, subject string, data []byte, hdr map[string]string) (*natsx.NatsxMessage, error)
	Publish(ctx context.Context, subject string, data []byte, hdr map[string]string) error
}

// Call describes one outbound command.
type Call struct {
	Service string
	Method  string
	UserID  string
	Payload any
	Timeout time.Duration
}

// Subject is "<service>.<method>".
func (c *Call) Subject() string { return c.Service + "." + c.Method }

// Invoker performs a call and decodes the reply data into out.
type Invoker func(ctx context.Context, call *Call, out any) error

// Middleware wraps an Invoker, like natsx.NatsxMiddleware does for handlers.
type Middleware func(Invoker) Invoker

type replyEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Bridge is safe for concurrent use; each call has its own deadline.
type Bridge struct {
	tr             Transport
	prefix         string
	defaultTimeout time.Duration
	invoke         Invoker
}

func NewBridge(tr Transport, cfg config.RPCConfig, mws ...Middleware) *Bridge {
	b := &Bridge{
		tr:             tr,
		prefix:         cfg.SubjectPrefix,
		defaultTimeout: cfg.DefaultTimeout,
	}
	if b.defaultTimeout <= 0 {
		b.defaultTimeout = 5 * time.Second
	}
	inv := b.roundTrip
	for i := len(mws) - 1; i >= 0; i-- {
		inv = mws[i](inv)
	}
	b.invoke = inv
	return b
}

func (b *Bridge) subject(c *Call) string { return b.prefix + c.Subject() }

// Call sends call and waits at most call.Timeout (the bridge default when
// zero) for the reply. out may be nil when the reply data is not needed.
func (b *Bridge) Call(ctx context.Context, call *Call, out any) error {
	if call.Timeout <= 0 {
		call.Timeout = b.defaultTimeout
	}
	return b.invoke(ctx, call, out)
}

func (b *Bridge) roundTrip(ctx context.Context, call *Call, out any) error {
	subject := b.subject(call)
	body, err := json.Marshal(call.Payload)
	if err != nil {
		return errs.Wrapf(err, "rpc %s: encode payload", subject)
	}

	ctx, cancel := context.WithTimeout(ctx, call.Timeout)
	defer cancel()

	reply, err := b.tr.Request(ctx, subject, body, b.header(call))
	if err != nil {
		return classify(subject, err)
	}

	var env replyEnvelope
	if err := json.Unmarshal(reply.Data, &env); err != nil {
		return &errs.UpstreamError{Method: subject, Code: errs.CodeBadReply, Message: "reply is not a valid envelope"}
	}
	if env.Error != nil {
		return &errs.UpstreamError{Method: subject, Code: env.Error.Code, Message: env.Error.Message}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &errs.UpstreamError{Method: subject, Code: errs.CodeBadReply, Message: "reply data has unexpected shape"}
	}
	return nil
}

// WithSent returns a ctx for Call that runs fn once the request is on the
// wire. The reply wait follows; fn is not called when the call fails before
// sending.
func WithSent(ctx context.Context, fn func()) context.Context { return natsx.WithSent(ctx, fn) }

// Sent runs the hook carried by ctx. Transports other than natsx call it
// after sending.
func Sent(ctx context.Context) { natsx.Sent(ctx) }

// Emit publishes call without waiting for a reply. Failures are only logged.
func (b *Bridge) Emit(ctx context.Context, call *Call) {
	subject := b.subject(call)
	body, err := json.Marshal(call.Payload)
	if err != nil {
		logger.Error("[rpc] emit encode failed", zap.String("subject", subject), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()
	if err := b.tr.Publish(ctx, subject, body, b.header(call)); err != nil {
		logger.Warn("[rpc] emit failed", zap.String("subject", subject), zap.Error(err))
	}
}

func (b *Bridge) header(call *Call) map[string]string {
	h := map[string]string{HeaderRequestID: uuid.NewString()}
	if call.UserID != "" {
		h[HeaderUserID] = call.UserID
	}
	return h
}

func classify(subject string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
		return errs.ErrUpstreamTimeout.WrapMsg("rpc", "method", subject)
	case errors.Is(err, nats.ErrNoResponders):
		return &errs.UpstreamError{Method: subject, Code: errs.CodeUpstreamUnavailable, Message: "no service is handling " + subject}
	default:
		logger.Warn("[rpc] transport failure", zap.String("subject", subject), zap.Error(err))
		return &errs.UpstreamError{Method: subject, Code: errs.CodeUpstreamUnavailable, Message: "upstream unreachable"}
	}
}

// LogMiddleware records every call with its duration and error class.
func LogMiddleware(slow time.Duration) Middleware {
	return func(next Invoker) Invoker {
		return func(ctx context.Context, call *Call, out any) error {
			start := time.Now()
			err := next(ctx, call, out)
			fields := []zap.Field{
				zap.String("subject", call.Subject()),
				zap.String("user", call.UserID),
				zap.Duration("cost", time.Since(start)),
			}
			switch {
			case err != nil:
				logger.Warn("[rpc] call failed", append(fields, zap.String("code", errs.Code(err)), zap.Error(err))...)
			case slow > 0 && time.Since(start) > slow:
				logger.Warn("[rpc] slow call", fields...)
			default:
				logger.Debug("[rpc] call ok", fields...)
			}
			return err
		}
	}
}
