package relay

import (
	"context"
	"encoding/json"

	"PPGateway/service/natsx"

	"github.com/pkg/errors"
)

// NatsConn is the part of *natsx.NatsxClient the relay uses.
type NatsConn interface {
	Publish(ctx context.Context, subject string, data []byte, hdr map[string]string) error
	Subscribe(subject, queue string, h natsx.NatsxHandler) error
}

// NatsRelay fans envelopes out on one plain subject. No queue group: every
// node must see every broadcast.
type NatsRelay struct {
	nc      NatsConn
	subject string
	nodeID  string
}

func NewNatsRelay(nc NatsConn, subject, nodeID string) *NatsRelay {
	return &NatsRelay{nc: nc, subject: subject, nodeID: nodeID}
}

func (r *NatsRelay) Publish(ctx context.Context, env Envelope) error {
	env.NodeID = r.nodeID
	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "relay: encode envelope")
	}
	return r.nc.Publish(ctx, r.subject, data, nil)
}

func (r *NatsRelay) Subscribe(_ context.Context, h Handler) error {
	return r.nc.Subscribe(r.subject, "", func(_ context.Context, msg natsx.NatsxMessage) error {
		accept(msg.Data, r.nodeID, h)
		return nil
	})
}

// Close is a no-op; the shared connection is drained by its owner.
func (r *NatsRelay) Close() error { return nil }
