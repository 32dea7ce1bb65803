// Package kafka streams presence transitions to a Kafka topic for
// downstream consumers (analytics, last-seen bookkeeping).
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"PPGateway/global/config"
	"PPGateway/logger"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PresenceEvent is the record value; the record key is UserID.
type PresenceEvent struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
	NodeID string `json:"nodeId"`
	TS     int64  `json:"ts"` // unix millis
}

// PresenceProducer publishes PresenceEvents through an AsyncProducer so a
// slow broker never stalls the caller. Events that do not fit the input
// buffer are dropped and logged.
type PresenceProducer struct {
	p       sarama.AsyncProducer
	topic   string
	nodeID  string
	now     func() time.Time
	drained chan struct{}
}

func NewPresenceProducer(p sarama.AsyncProducer, topic, nodeID string) *PresenceProducer {
	pp := &PresenceProducer{p: p, topic: topic, nodeID: nodeID, now: time.Now, drained: make(chan struct{})}
	go pp.drainErrors()
	return pp
}

func (pp *PresenceProducer) drainErrors() {
	defer close(pp.drained)
	for perr := range pp.p.Errors() {
		user := ""
		if perr.Msg != nil && perr.Msg.Key != nil {
			if b, err := perr.Msg.Key.Encode(); err == nil {
				user = string(b)
			}
		}
		logger.Warn("[kafka] presence event dropped", zap.String("user", user), zap.Error(perr.Err))
	}
}

// Dial connects to kc.Brokers, optionally provisions the topic and returns
// a ready producer.
func Dial(kc config.KafkaConfig, nodeID string) (*PresenceProducer, error) {
	cfg, err := BuildBaseConfig(kc)
	if err != nil {
		return nil, err
	}
	client, err := sarama.NewClient(kc.Brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "kafka client")
	}
	if kc.EnsureTopic {
		admin, err := sarama.NewClusterAdminFromClient(client)
		if err != nil {
			_ = client.Close()
			return nil, errors.Wrap(err, "kafka admin")
		}
		if err := EnsureTopic(admin, kc.PresenceTopic, kc.Partitions, kc.ReplicationFactor); err != nil {
			_ = client.Close()
			return nil, err
		}
	}
	p, err := sarama.NewAsyncProducerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "kafka producer")
	}
	logger.Info("[kafka] presence producer ready", zap.Strings("brokers", kc.Brokers), zap.String("topic", kc.PresenceTopic))
	return NewPresenceProducer(p, kc.PresenceTopic, nodeID), nil
}

// PresenceChanged queues one transition without blocking. Failures are
// logged, never returned.
func (pp *PresenceProducer) PresenceChanged(_ context.Context, userID, status string) {
	ev := PresenceEvent{UserID: userID, Status: status, NodeID: pp.nodeID, TS: pp.now().UnixMilli()}
	val, err := json.Marshal(ev)
	if err != nil {
		logger.Error("[kafka] encode presence event", zap.Error(err))
		return
	}
	msg := &sarama.ProducerMessage{
		Topic: pp.topic,
		Key:   sarama.StringEncoder(userID),
		Value: sarama.ByteEncoder(val),
	}
	select {
	case pp.p.Input() <- msg:
	default:
		logger.Warn("[kafka] producer busy, presence event dropped", zap.String("user", userID), zap.String("status", status))
	}
}

// Close flushes buffered events and waits for their errors to be logged.
func (pp *PresenceProducer) Close() error {
	pp.p.AsyncClose()
	<-pp.drained
	return nil
}

// Noop is used when no brokers are configured.
type Noop struct{}

func (Noop) PresenceChanged(context.Context, string, string) {}
func (Noop) Close() error { return nil }
