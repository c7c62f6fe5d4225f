package messaging

import (
	"context"
	"time"
)

// Publisher 메시지 발행 인터페이스
type Publisher interface {
	Publish(ctx context.Context, topic string, key string, message interface{}) error
	Close() error
}

// Message 수신 메시지 구조체
type Message struct {
	Channel string
	Payload []byte
	Time    time.Time
}

// NopPublisher 발행을 하지 않는 구현체 (events.driver: none)
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, topic string, key string, message interface{}) error {
	return nil
}

func (NopPublisher) Close() error {
	return nil
}
