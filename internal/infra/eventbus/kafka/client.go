// Package kafka publishes run events to Kafka topics.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/ahrav/taskfarm/pkg/common"
	"github.com/ahrav/taskfarm/pkg/common/logger"
)

// ClientConfig contains all configuration needed for Kafka producer setup.
type ClientConfig struct {
	Brokers  []string
	ClientID string
}

// NewConfig returns the sarama settings every producer uses.
func NewConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner

	// Version should be consistent across all components
	config.Version = sarama.V3_6_0_0

	return config
}

// ConnectProducer dials the brokers, retrying with backoff until a producer is
// created or ctx ends.
func ConnectProducer(ctx context.Context, cfg *ClientConfig, log *logger.Logger) (sarama.SyncProducer, error) {
	var producer sarama.SyncProducer
	retry := common.RetryConfig{InitialInterval: 2 * time.Second, MaxElapsedTime: time.Minute}

	err := common.RetryWithBackoff(ctx, log, "connecting kafka producer", retry, func() error {
		p, err := sarama.NewSyncProducer(cfg.Brokers, NewConfig(cfg.ClientID))
		if err != nil {
			return fmt.Errorf("creating producer: %w", err)
		}
		producer = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return producer, nil
}
