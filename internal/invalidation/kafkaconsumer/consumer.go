// Package kafkaconsumer runs the Kafka consumer group that applies
// source-invalidation events to the raster cache and the source registry.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/sentinel-hub/classification-app-backend/internal/invalidation"
	"github.com/sentinel-hub/classification-app-backend/internal/model"
)

// RegionPurger drops every cached raster whose footprint touches the region.
type RegionPurger interface {
	Purge(ctx context.Context, region model.BBox) (int, error)
}

// RegistryReloader re-reads source definitions from the configured file.
type RegistryReloader interface {
	ReloadFromFile() error
}

type Consumer struct {
	cfg      Config
	logger   zerolog.Logger
	purger   RegionPurger
	registry RegistryReloader
}

func New(cfg Config, logger zerolog.Logger, purger RegionPurger, registry RegistryReloader) *Consumer {
	cfg.applyDefaults()
	return &Consumer{
		cfg:      cfg,
		logger:   logger.With().Str("component", "kafka_consumer").Logger(),
		purger:   purger,
		registry: registry,
	}
}

// Start joins the consumer group and processes events until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.registry == nil {
		return errors.New("kafkaconsumer: missing registry dependency")
	}
	if len(c.cfg.Brokers) == 0 {
		return errors.New("kafkaconsumer: no brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.logger.Info().
		Strs("brokers", c.cfg.Brokers).
		Str("topic", c.cfg.Topic).
		Str("group", c.cfg.GroupID).
		Msg("invalidation consumer starting")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.logger.Error().Err(err).
					Strs("brokers", c.cfg.Brokers).
					Str("topic", c.cfg.Topic).
					Msg("kafka consumer error")
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne applies a single invalidation message. Decode and validation
// failures are returned so the claim surfaces them; the offset is only marked
// after a successful apply.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.logger.Error().Err(err).
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("event decode failed")
		return fmt.Errorf("json decode: %w", err)
	}
	if err := ev.Validate(); err != nil {
		// malformed producer payloads are logged and skipped, not retried
		c.logger.Warn().Err(err).
			Str("op", ev.Op).
			Str("source", ev.SourceID).
			Msg("invalid invalidation event, skipping")
		return nil
	}

	switch ev.Op {
	case invalidation.OpReload:
		if err := c.registry.ReloadFromFile(); err != nil {
			return fmt.Errorf("registry reload: %w", err)
		}
		c.logger.Info().Msg("source registry reloaded")
		return nil
	default:
		if c.purger == nil {
			c.logger.Debug().Str("op", ev.Op).Msg("no cache configured, ignoring regional event")
			return nil
		}
		purged, err := c.purger.Purge(ctx, *ev.BBox)
		if err != nil {
			return fmt.Errorf("purge region: %w", err)
		}
		c.logger.Info().
			Str("op", ev.Op).
			Str("source", ev.SourceID).
			Int("rasters", purged).
			Msg("purged cached rasters")
		return nil
	}
}
