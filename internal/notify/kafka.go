package notify

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"
)

// TopicNotificationPushes carries notification push requests to the delivery
// workers.
const TopicNotificationPushes = "notification_pushes"

// KafkaSender publishes notification pushes to Kafka, lazily managing one
// writer per topic.
type KafkaSender struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaSender creates a KafkaSender.
func NewKafkaSender(brokers []string) *KafkaSender {
	return &KafkaSender{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// Send implements Sender by publishing the notification keyed by user id, so
// pushes for one user stay ordered within a partition.
func (s *KafkaSender) Send(ctx context.Context, userID string, n Notification) error {
	payload, err := json.Marshal(struct {
		UserID string `json:"user_id"`
		Notification
	}{UserID: userID, Notification: n})
	if err != nil {
		return err
	}

	writer := s.writerForTopic(TopicNotificationPushes)
	return writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(userID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("notification.push")},
		},
	})
}

func (s *KafkaSender) writerForTopic(topic string) *kafka.Writer {
	s.mu.Lock()
	defer s.mu.Unlock()

	if writer, ok := s.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(s.brokers...),
		Topic:        topic,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
		Async:        false,
	}
	s.writers[topic] = writer
	return writer
}

// Close releases all writers.
func (s *KafkaSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for topic, writer := range s.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.writers, topic)
	}
	return firstErr
}
