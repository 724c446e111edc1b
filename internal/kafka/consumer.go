package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"fleetmetrics/internal/cache"
)

// refreshEvent announces that new data was generated for a KPI. The
// coordinator marks all cached ranges of that KPI stale so widgets pick up
// the new data at next revalidation.
type refreshEvent struct {
	KPIKey      string  `json:"kpi_key"`
	DashboardID string  `json:"dashboard_id"`
	GeneratedAt float64 `json:"generated_at"`
}

// Consumer reads fleet refresh events and invalidates the payload cache.
type Consumer struct {
	reader *kafka.Reader
	coord  *cache.Coordinator
	logger *logrus.Logger
}

// NewConsumer builds a Consumer for the given broker/topic/group.
func NewConsumer(broker, topic, groupID string, coord *cache.Coordinator, logger *logrus.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{broker},
		Topic:   topic,
		GroupID: groupID,
	})
	return &Consumer{reader: reader, coord: coord, logger: logger}
}

// Start consumes events until ctx is cancelled. Malformed messages are
// logged and skipped; the loop never stops on a bad event.
func (c *Consumer) Start(ctx context.Context) {
	c.logger.Infof("Kafka consumer started on topic %s", c.reader.Config().Topic)
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.logger.Infof("Kafka consumer stopped")
				return
			}
			c.logger.Errorf("Read message failed: %v", err)
			continue
		}

		var event refreshEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Errorf("Unmarshal refresh event failed: %v", err)
			continue
		}
		if event.KPIKey == "" {
			c.logger.Errorf("Invalid refresh event: missing kpi_key")
			continue
		}

		c.coord.Invalidate(event.KPIKey)
		c.logger.Infof("Invalidated cache for kpi=%s", event.KPIKey)
	}
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
