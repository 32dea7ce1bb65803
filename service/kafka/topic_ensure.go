package kafka

import (
	"errors"
	"fmt"

	"PPGateway/logger"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"
)

// TopicAdmin is the part of sarama.ClusterAdmin used to provision topics.
type TopicAdmin interface {
	DescribeTopics(topics []string) ([]*sarama.TopicMetadata, error)
	CreateTopic(topic string, detail *sarama.TopicDetail, validateOnly bool) error
}

// EnsureTopic creates topic when it does not exist. An existing topic is
// left untouched whatever its partition count.
func EnsureTopic(admin TopicAdmin, topic string, partitions int32, replication int16) error {
	descs, err := admin.DescribeTopics([]string{topic})
	if err == nil && len(descs) == 1 && errors.Is(descs[0].Err, sarama.ErrNoError) {
		logger.Info("[kafka] topic exists", zap.String("topic", topic), zap.Int("partitions", len(descs[0].Partitions)))
		return nil
	}
	if partitions <= 0 {
		partitions = 1
	}
	if replication <= 0 {
		replication = 1
	}
	minISR := "1"
	if replication >= 3 {
		minISR = "2"
	}
	td := &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: replication,
		ConfigEntries: map[string]*string{
			"cleanup.policy":                 strPtr("delete"),
			"min.insync.replicas":            strPtr(minISR),
			"unclean.leader.election.enable": strPtr("false"),
			"compression.type":               strPtr("producer"),
		},
	}
	if err := admin.CreateTopic(topic, td, false); err != nil {
		var te *sarama.TopicError
		if errors.As(err, &te) && te.Err == sarama.ErrTopicAlreadyExists {
			return nil
		}
		if errors.Is(err, sarama.ErrTopicAlreadyExists) {
			return nil
		}
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	logger.Info("[kafka] topic created", zap.String("topic", topic), zap.Int32("partitions", partitions), zap.Int16("rf", replication))
	return nil
}

func strPtr(s string) *string { return &s }
