package natsx

import (
	"context"
	"time"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"go.uber.org/zap"
)

// NatsxMessage is a received message detached from the nats.Msg buffer.
type NatsxMessage struct {
	Subject string
	Reply   string
	Data    []byte
	Header  map[string]string
}

// NatsxHandler processes one message.
type NatsxHandler func(ctx context.Context, msg NatsxMessage) error

// NatsxMiddleware wraps a handler (logging, recovery, ...).
type NatsxMiddleware func(NatsxHandler) NatsxHandler

// NatsxChain applies mws so that mws[0] runs first.
func NatsxChain(h NatsxHandler, mws ...NatsxMiddleware) NatsxHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// NatsxRecover turns a handler panic into an error.
func NatsxRecover() NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errs.ErrPanic(r)
					logger.Error("[natsx] handler panic", zap.String("subject", msg.Subject), zap.Any("panic", r))
				}
			}()
			return next(ctx, msg)
		}
	}
}

// NatsxLog logs failed or slow handlers.
func NatsxLog(slow time.Duration) NatsxMiddleware {
	return func(next NatsxHandler) NatsxHandler {
		return func(ctx context.Context, msg NatsxMessage) error {
			start := time.Now()
			err := next(ctx, msg)
			cost := time.Since(start)
			if err != nil {
				logger.Warn("[natsx] handler failed", zap.String("subject", msg.Subject), zap.Duration("cost", cost), zap.Error(err))
			} else if slow > 0 && cost > slow {
				logger.Warn("[natsx] slow handler", zap.String("subject", msg.Subject), zap.Duration("cost", cost))
			}
			return err
		}
	}
}
