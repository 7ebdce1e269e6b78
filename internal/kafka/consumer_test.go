package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/brokerage-ledger/internal/models"
)

type mockQuoteApplier struct {
	mu     sync.Mutex
	quotes []models.PriceQuote
	err    error
}

func (m *mockQuoteApplier) ApplyQuote(_ context.Context, q models.PriceQuote) (*models.Stock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.quotes = append(m.quotes, q)
	return &models.Stock{CompanyID: q.CompanyID, CurrentPrice: q.Price, LastUpdated: q.At}, nil
}

func (m *mockQuoteApplier) Quotes() []models.PriceQuote {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.PriceQuote(nil), m.quotes...)
}

type mockRevaluer struct {
	mu        sync.Mutex
	companies []int64
	called    chan struct{}
}

func (m *mockRevaluer) RevalueCompany(_ context.Context, companyID int64) (int, error) {
	m.mu.Lock()
	m.companies = append(m.companies, companyID)
	m.mu.Unlock()
	if m.called != nil {
		select {
		case m.called <- struct{}{}:
		default:
		}
	}
	return 1, nil
}

func (m *mockRevaluer) Companies() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.companies...)
}

type mockReader struct {
	cfg  kafka.ReaderConfig
	msgs chan kafka.Message

	mu         sync.Mutex
	closeCalls int
}

func newMockReader(topic string, buffer int) *mockReader {
	return &mockReader{
		cfg:  kafka.ReaderConfig{Topic: topic},
		msgs: make(chan kafka.Message, buffer),
	}
}

func (r *mockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-r.msgs:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *mockReader) Close() error {
	r.mu.Lock()
	r.closeCalls++
	r.mu.Unlock()
	return nil
}

func (r *mockReader) Config() kafka.ReaderConfig {
	return r.cfg
}

func (r *mockReader) CloseCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeCalls
}

func priceMessage(t *testing.T, eventType string, q models.PriceQuote) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(models.PriceEvent{EventType: eventType, Source: "feed", Quote: q})
	require.NoError(t, err)
	return kafka.Message{Key: []byte(q.Symbol), Value: payload}
}

func TestConsumer_processMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("applies quote then revalues holders", func(t *testing.T) {
		quotes := &mockQuoteApplier{}
		revaluer := &mockRevaluer{}
		consumer := &Consumer{quotes: quotes, revaluer: revaluer, log: zerolog.Nop()}

		at := time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC)
		msg := priceMessage(t, models.PriceEventUpdated, models.PriceQuote{CompanyID: 3, Price: decimal.RequireFromString("101.25"), Volume: 500, At: at})

		require.NoError(t, consumer.processMessage(ctx, msg))

		require.Len(t, quotes.Quotes(), 1)
		got := quotes.Quotes()[0]
		assert.True(t, got.Price.Equal(decimal.RequireFromString("101.25")))
		assert.True(t, got.At.Equal(at))
		assert.Equal(t, []int64{3}, revaluer.Companies())
	})

	t.Run("ignores other event types", func(t *testing.T) {
		quotes := &mockQuoteApplier{}
		revaluer := &mockRevaluer{}
		consumer := &Consumer{quotes: quotes, revaluer: revaluer, log: zerolog.Nop()}

		msg := priceMessage(t, "PRICE_DELISTED", models.PriceQuote{CompanyID: 3, Price: decimal.NewFromInt(1)})
		require.NoError(t, consumer.processMessage(ctx, msg))
		assert.Empty(t, quotes.Quotes())
		assert.Empty(t, revaluer.Companies())
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		consumer := &Consumer{quotes: &mockQuoteApplier{}, revaluer: &mockRevaluer{}, log: zerolog.Nop()}
		err := consumer.processMessage(ctx, kafka.Message{Value: []byte("{not json")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to unmarshal price event")
	})

	t.Run("uses message time when quote has none", func(t *testing.T) {
		quotes := &mockQuoteApplier{}
		consumer := &Consumer{quotes: quotes, revaluer: &mockRevaluer{}, log: zerolog.Nop()}

		msg := priceMessage(t, models.PriceEventUpdated, models.PriceQuote{Symbol: "AAPL", Price: decimal.NewFromInt(10)})
		msg.Time = time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)
		require.NoError(t, consumer.processMessage(ctx, msg))
		assert.True(t, quotes.Quotes()[0].At.Equal(msg.Time))
	})

	t.Run("does not revalue when the quote is rejected", func(t *testing.T) {
		revaluer := &mockRevaluer{}
		consumer := &Consumer{
			quotes:   &mockQuoteApplier{err: models.NewValidationError("price", "must be positive")},
			revaluer: revaluer,
			log:      zerolog.Nop(),
		}
		msg := priceMessage(t, models.PriceEventUpdated, models.PriceQuote{Symbol: "AAPL"})

		err := consumer.processMessage(ctx, msg)
		assert.ErrorIs(t, err, models.ErrValidation)
		assert.Contains(t, err.Error(), "AAPL")
		assert.Empty(t, revaluer.Companies())
	})
}

func TestConsumer_Start_consumesAndProcessesMessages(t *testing.T) {
	quotes := &mockQuoteApplier{}
	revaluer := &mockRevaluer{called: make(chan struct{}, 1)}
	reader := newMockReader("prices", 2)
	consumer := &Consumer{reader: reader, quotes: quotes, revaluer: revaluer, log: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- consumer.Start(ctx)
	}()

	// a bad message must not stop the loop
	reader.msgs <- kafka.Message{Value: []byte("garbage")}
	reader.msgs <- priceMessage(t, models.PriceEventUpdated, models.PriceQuote{CompanyID: 9, Price: decimal.NewFromInt(42)})

	select {
	case <-revaluer.called:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for price update to be processed")
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for consumer to shut down")
	}

	assert.Equal(t, []int64{9}, revaluer.Companies())
	assert.Equal(t, 1, reader.CloseCalls())
}

func TestConsumer_Start_returnsCloseError(t *testing.T) {
	reader := &failingCloseReader{mockReader: newMockReader("prices", 0), err: errors.New("close failed")}
	consumer := &Consumer{reader: reader, quotes: &mockQuoteApplier{}, revaluer: &mockRevaluer{}, log: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := consumer.Start(ctx)
	assert.EqualError(t, err, "close failed")
}

type failingCloseReader struct {
	*mockReader
	err error
}

func (r *failingCloseReader) Close() error {
	return r.err
}
