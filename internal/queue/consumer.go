package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/your-org/attendance/internal/models"
)

// EventHandler processes one attendance event. A returned error causes redelivery.
type EventHandler func(ctx context.Context, ev models.AttendanceEvent) error

type Consumer struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *zap.Logger
}

func NewConsumer(natsURL string, logger *zap.Logger) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js, logger: logger.Named("consumer")}, nil
}

// consumerInactiveThreshold is how long the server keeps an instance
// consumer after its process stops fetching.
const consumerInactiveThreshold = time.Minute

// InstanceConsumerName suffixes prefix with the host name and a random
// token, so every process gets its own view of the stream.
func InstanceConsumerName(prefix string) string {
	parts := []string{prefix}
	if host, err := os.Hostname(); err == nil && host != "" {
		parts = append(parts, sanitizeName(host))
	}
	parts = append(parts, uuid.NewString()[:8])
	return strings.Join(parts, "-")
}

// sanitizeName keeps characters that are valid in a JetStream consumer name.
func sanitizeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// attendanceConsumerConfig describes an ephemeral, per-instance consumer:
// every API replica receives every event and the server removes the
// consumer once its replica is gone.
func attendanceConsumerConfig(name string) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Name:              name,
		AckPolicy:         jetstream.AckExplicitPolicy,
		AckWait:           10 * time.Second,
		MaxDeliver:        3,
		FilterSubject:     AttendanceSubjectBase + ".>",
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		InactiveThreshold: consumerInactiveThreshold,
	}
}

// ConsumeAttendance delivers new attendance events to handler until ctx is
// done. consumerName must be unique per process; see InstanceConsumerName.
func (c *Consumer) ConsumeAttendance(ctx context.Context, consumerName string, handler EventHandler) error {
	stream, err := c.js.Stream(ctx, AttendanceStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", AttendanceStreamName, err)
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, attendanceConsumerConfig(consumerName))
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("fetch attendance events", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				c.dispatch(ctx, msg, handler)
			}
		}
	}()

	c.logger.Info("attendance consumer started", zap.String("consumer", consumerName))
	return nil
}

func (c *Consumer) dispatch(ctx context.Context, msg jetstream.Msg, handler EventHandler) {
	ev, err := decodeEvent(msg.Data())
	if err != nil {
		c.logger.Error("drop malformed attendance event", zap.String("subject", msg.Subject()), zap.Error(err))
		_ = msg.Term()
		return
	}
	if err := handler(ctx, ev); err != nil {
		c.logger.Error("process attendance event", zap.String("subject", msg.Subject()), zap.Error(err))
		_ = msg.Nak()
		return
	}
	_ = msg.Ack()
}

func decodeEvent(data []byte) (models.AttendanceEvent, error) {
	var ev models.AttendanceEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode attendance event: %w", err)
	}
	return ev, nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
