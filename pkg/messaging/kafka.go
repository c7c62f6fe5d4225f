package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// KafkaConfig Kafka 프로듀서 설정
type KafkaConfig struct {
	Brokers  []string
	ClientID string
	Retries  int
}

type kafkaPublisher struct {
	producer sarama.SyncProducer
}

// NewKafkaPublisher 동기 프로듀서 기반 발행기를 생성합니다
func NewKafkaPublisher(cfg KafkaConfig) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("Kafka 브로커가 설정되지 않았습니다")
	}

	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Producer.Retry.Max = cfg.Retries
	if sc.Producer.Retry.Max <= 0 {
		sc.Producer.Retry.Max = 3
	}
	sc.Producer.Retry.Backoff = 200 * time.Millisecond

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("Kafka 프로듀서 생성 실패: %w", err)
	}

	return NewKafkaPublisherWithProducer(producer), nil
}

// NewKafkaPublisherWithProducer 이미 생성된 프로듀서로 발행기를 만듭니다 (테스트용 mocks 포함)
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer) Publisher {
	return &kafkaPublisher{producer: producer}
}

// Publish 같은 key는 같은 파티션으로 전달되어 순서가 유지됩니다
func (k *kafkaPublisher) Publish(ctx context.Context, topic string, key string, message interface{}) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("메시지 직렬화 실패: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(payload),
		Timestamp: time.Now(),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	if _, _, err := k.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("Kafka 메시지 발행 실패: %w", err)
	}
	return nil
}

func (k *kafkaPublisher) Close() error {
	return k.producer.Close()
}
