package kafka

import (
	"strings"
	"time"

	"PPGateway/global/config"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"
)

// BuildBaseConfig maps the gateway's kafka section onto a sarama config for
// an asynchronous, key-partitioned producer. Only errors are returned.
func BuildBaseConfig(kc config.KafkaConfig) (*sarama.Config, error) {
	cfg := sarama.NewConfig()
	if kc.Version != "" {
		v, err := sarama.ParseKafkaVersion(kc.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "kafka version %q", kc.Version)
		}
		cfg.Version = v
	}
	if kc.ClientID != "" {
		cfg.ClientID = kc.ClientID
	}

	cfg.Producer.Return.Successes = false
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Timeout = 3 * time.Second
	cfg.Producer.Retry.Max = kc.Retries
	if cfg.Producer.Retry.Max <= 0 {
		cfg.Producer.Retry.Max = 1
	}
	// one user's transitions stay ordered on one partition
	cfg.Producer.Partitioner = sarama.NewHashPartitioner
	switch strings.ToLower(kc.Compression) {
	case "snappy":
		cfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		cfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		cfg.Producer.Compression = sarama.CompressionZSTD
	default:
		cfg.Producer.Compression = sarama.CompressionNone
	}

	cfg.Net.DialTimeout = 5 * time.Second
	cfg.Net.ReadTimeout = 5 * time.Second
	cfg.Net.WriteTimeout = 5 * time.Second
	return cfg, nil
}
