package natsx

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

func ToHeader(h map[string]string) nats.Header {
	if len(h) == 0 {
		return nil
	}
	hd := nats.Header{}
	for k, v := range h {
		hd.Add(k, v)
	}
	return hd
}

func headerToMap(h nats.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// Publish sends data on subject without waiting for anyone.
func (c *NatsxClient) Publish(_ context.Context, subject string, data []byte, hdr map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header = headerOrEmpty(hdr)
	if err := c.nc.PublishMsg(msg); err != nil {
		return errors.Wrapf(err, "publish %s", subject)
	}
	return nil
}

type sentKey struct{}

// WithSent returns a ctx whose Request calls fn once the request has been
// published, before the reply is awaited.
func WithSent(ctx context.Context, fn func()) context.Context {
	return context.WithValue(ctx, sentKey{}, fn)
}

// Sent runs the hook set by WithSent, if any.
func Sent(ctx context.Context) {
	if fn, _ := ctx.Value(sentKey{}).(func()); fn != nil {
		fn()
	}
}

// Request sends data on subject and waits for one reply until ctx is done.
// The nats sentinel errors (ErrNoResponders, context errors) are returned
// unwrapped so callers can classify them.
func (c *NatsxClient) Request(ctx context.Context, subject string, data []byte, hdr map[string]string) (*NatsxMessage, error) {
	inbox := c.nc.NewInbox()
	sub, err := c.nc.SubscribeSync(inbox)
	if err != nil {
		return nil, errors.Wrapf(err, "request %s: reply inbox", subject)
	}
	defer func() { _ = sub.Unsubscribe() }()
	_ = sub.AutoUnsubscribe(1)

	msg := nats.NewMsg(subject)
	msg.Reply = inbox
	msg.Data = data
	msg.Header = headerOrEmpty(hdr)
	if err := c.nc.PublishMsg(msg); err != nil {
		return nil, errors.Wrapf(err, "request %s", subject)
	}
	Sent(ctx)

	reply, err := sub.NextMsgWithContext(ctx)
	if err != nil {
		return nil, err
	}
	if isNoResponders(reply) {
		return nil, nats.ErrNoResponders
	}
	return &NatsxMessage{
		Subject: reply.Subject,
		Data:    reply.Data,
		Header:  headerToMap(reply.Header),
	}, nil
}

// The server answers a request nobody subscribes to with an empty 503
// status message on the reply inbox.
func isNoResponders(m *nats.Msg) bool {
	return len(m.Data) == 0 && m.Header.Get("Status") == "503"
}

func headerOrEmpty(h map[string]string) nats.Header {
	if hd := ToHeader(h); hd != nil {
		return hd
	}
	return nats.Header{}
}
