// Package ingest consumes location batches recorded on devices and feeds
// them to the background task runtime.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/tracker/internal/domain"
)

// TopicLocationBatches carries batches of position samples recorded while
// the interactive process was suspended.
const TopicLocationBatches = "location_batches"

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded batches.
type Handler interface {
	Handle(context.Context, Batch) error
}

// Batch is the decoded representation of one location-batch record.
type Batch struct {
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Task      string
	UserID    string
	Samples   []domain.Coordinate
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor pulls location batches from Kafka, decodes them, and dispatches
// to a Handler.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor with the provided reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[ingest] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts a blocking loop that processes batches until the context is
// cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			p.logger.Printf("fetch error: %v", err)
			continue
		}

		batch, decodeErr := decodeBatch(msg)
		if decodeErr != nil {
			p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v", msg.Topic, msg.Partition, msg.Offset, decodeErr)
			recordDecodeError(msg.Topic)
			// Commit malformed messages to avoid poison-pill loops.
			if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
				p.logger.Printf("commit error after decode failure: %v", commitErr)
			}
			continue
		}

		if handleErr := p.handler.Handle(ctx, batch); handleErr != nil {
			p.logger.Printf("handler error (task=%s, user=%s): %v", batch.Task, batch.UserID, handleErr)
			recordHandlerError(batch)
			continue
		}

		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error: %v", commitErr)
		} else {
			recordProcessed(batch)
		}
	}
}

func decodeBatch(msg kafka.Message) (Batch, error) {
	task, ok := headerValue(msg, "task")
	if !ok {
		return Batch{}, errors.New("missing task header")
	}

	var payload struct {
		Samples []domain.Coordinate `json:"samples"`
	}
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return Batch{}, fmt.Errorf("unmarshalling batch payload: %w", err)
	}
	if len(payload.Samples) == 0 {
		return Batch{}, errors.New("empty batch")
	}

	return Batch{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Task:      string(task),
		UserID:    string(msg.Key),
		Samples:   payload.Samples,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
