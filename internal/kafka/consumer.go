package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/trogers1052/brokerage-ledger/internal/models"
)

// QuoteApplier folds a price observation into the stock catalog
type QuoteApplier interface {
	ApplyQuote(ctx context.Context, q models.PriceQuote) (*models.Stock, error)
}

// CompanyRevaluer marks every holder of a company to the latest price
type CompanyRevaluer interface {
	RevalueCompany(ctx context.Context, companyID int64) (int, error)
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// Consumer handles consuming price updates from Kafka.
// Each accepted quote updates the catalog and then revalues the holders of
// the quoted company.
type Consumer struct {
	reader   messageReader
	quotes   QuoteApplier
	revaluer CompanyRevaluer
	log      zerolog.Logger
}

// NewConsumer creates a new Kafka consumer for price events
func NewConsumer(brokers []string, topic, groupID string, quotes QuoteApplier, revaluer CompanyRevaluer, log zerolog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.LastOffset,
		CommitInterval: time.Second,
	})

	return &Consumer{
		reader:   reader,
		quotes:   quotes,
		revaluer: revaluer,
		log:      log.With().Str("component", "price_consumer").Logger(),
	}
}

// Start begins consuming messages from Kafka
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info().Str("topic", c.reader.Config().Topic).Msg("Starting Kafka price consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Kafka price consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.log.Error().Err(err).Msg("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				c.log.Error().Err(err).
					Int("partition", msg.Partition).
					Int64("offset", msg.Offset).
					Msg("Error processing price message")
			}
		}
	}
}

// processMessage handles a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.PriceEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal price event: %w", err)
	}

	if event.EventType != models.PriceEventUpdated {
		c.log.Debug().Str("event_type", event.EventType).Msg("Ignoring event type")
		return nil
	}

	quote := event.Quote
	if quote.At.IsZero() && !msg.Time.IsZero() {
		quote.At = msg.Time
	}

	stock, err := c.quotes.ApplyQuote(ctx, quote)
	if err != nil {
		return fmt.Errorf("failed to apply quote for %s: %w", describeQuote(quote), err)
	}

	revalued, err := c.revaluer.RevalueCompany(ctx, stock.CompanyID)
	if err != nil {
		return fmt.Errorf("failed to revalue holders of company %d: %w", stock.CompanyID, err)
	}

	c.log.Debug().
		Int64("company_id", stock.CompanyID).
		Str("price", stock.CurrentPrice.String()).
		Int("holders", revalued).
		Str("source", event.Source).
		Msg("Processed price update")
	return nil
}

func describeQuote(q models.PriceQuote) string {
	if q.Symbol != "" {
		return q.Symbol
	}
	return fmt.Sprintf("company %d", q.CompanyID)
}

// Close closes the Kafka consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
