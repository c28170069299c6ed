// Package kafka provides methods for initiating kafka-topics for the app and a kafka readiness-probing
package kafka

import (
	"context"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"
)

// TopicCreator - часть kafka-клиента, нужная для создания топиков
type TopicCreator interface {
	CreateTopics(ctx context.Context, req *kafkago.CreateTopicsRequest) (*kafkago.CreateTopicsResponse, error)
}

func NewClient(brokerAddr string) *kafkago.Client {
	return &kafkago.Client{
		Addr:    kafkago.TCP(brokerAddr),
		Timeout: 10 * time.Second,
	}
}

// InitKafkaTopics - creates topics in kafka, retrying until every topic exists or ctx is done
func InitKafkaTopics(ctx context.Context, client TopicCreator, delay time.Duration, topics ...string) error {
	req := kafkago.CreateTopicsRequest{
		Topics: make([]kafkago.TopicConfig, 0, len(topics)),
	}

	for _, t := range topics {
		if t == "" {
			continue
		}
		topic := kafkago.TopicConfig{
			Topic:             t,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
		req.Topics = append(req.Topics, topic)
	}

	for {
		resp, err := client.CreateTopics(ctx, &req)
		if err == nil && topicsReady(resp) {
			zlog.Logger.Info().Int("topics", len(req.Topics)).Msg("All topics created successfully!")
			return nil
		}
		if err != nil {
			zlog.Logger.Error().Err(err).Msgf("Failed to run topics creation request. Wait %v before next try...", delay)
		}

		select {
		case <-ctx.Done():
			zlog.Logger.Warn().Msg("InitKafkaTopics canceled or timed out")
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func topicsReady(resp *kafkago.CreateTopicsResponse) bool {
	ready := true
	for k, v := range resp.Errors {
		switch {
		case v == nil, errors.Is(v, kafkago.TopicAlreadyExists):
		default:
			zlog.Logger.Error().Err(v).Str("topic", k).Msg("Topic creation error")
			ready = false
		}
	}
	return ready
}

// WaitKafkaReady - timeout given to kafka-service for getting fully functional
func WaitKafkaReady(ctx context.Context, brokerAddr string, delay time.Duration) error {
	for {
		conn, err := kafkago.DialContext(ctx, "tcp", brokerAddr)
		if err == nil {
			if errConn := conn.Close(); errConn != nil {
				zlog.Logger.Warn().Err(errConn).Msg("Failed to close connection after testing Kafka readyness")
			}
			zlog.Logger.Info().Msg("Kafka is ready!")
			return nil
		}
		zlog.Logger.Info().Msgf("Kafka not ready, retrying in %v...", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
