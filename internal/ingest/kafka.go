package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"farmwatch/internal/config"
	"farmwatch/internal/model"
)

func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- model.SensorReading, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	parser := NewParser()
	go func() {
		var counts lineCounts
		defer func() {
			_ = reader.Close()
			counts.log(logger, "kafka ingest stopped", "topic", current.Topic)
		}()
		for {
			m, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if logger != nil {
					logger.Warn("kafka read error", "err", err)
				}
				if !BackoffSleep(ctx, time.Second) {
					return
				}
				continue
			}
			before := counts
			counts.emitLine(ctx, parser, string(m.Value), string(m.Key), cfg.Get(), "kafka", out, logger)
			if counts.Rejected > before.Rejected && logger != nil {
				logger.Debug("kafka message rejected", "partition", m.Partition, "offset", m.Offset)
			}
		}
	}()
}
