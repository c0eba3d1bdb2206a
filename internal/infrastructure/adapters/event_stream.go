package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/invest-portal/portal_service/internal/domain/entities"
	"github.com/invest-portal/portal_service/pkg/logger"
)

// RedisEventStream publishes withdrawal change events to a per-investor
// redis channel and serves long-lived subscriptions over the same channel.
// Publishing runs behind a circuit breaker so a redis outage degrades to
// dropped notifications instead of stalled lifecycle operations.
type RedisEventStream struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

// NewRedisEventStream creates an event stream on the given redis client
func NewRedisEventStream(client *redis.Client, log *logger.Logger) *RedisEventStream {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "withdrawal-events",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &RedisEventStream{client: client, breaker: breaker, logger: log}
}

func channelFor(investorID uuid.UUID) string {
	return fmt.Sprintf("withdrawals:%s", investorID.String())
}

// PublishWithdrawalEvent publishes a change event to the investor's channel
func (s *RedisEventStream) PublishWithdrawalEvent(ctx context.Context, event entities.WithdrawalEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode withdrawal event: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.client.Publish(ctx, channelFor(event.InvestorID), payload).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish withdrawal event: %w", err)
	}
	return nil
}

// Subscribe opens a change-event stream for one investor. The returned
// cancel function tears down the subscription; the channel closes after it.
func (s *RedisEventStream) Subscribe(ctx context.Context, investorID uuid.UUID) (<-chan entities.WithdrawalEvent, func(), error) {
	pubsub := s.client.Subscribe(ctx, channelFor(investorID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to withdrawal events: %w", err)
	}

	events := make(chan entities.WithdrawalEvent)
	done := make(chan struct{})

	go func() {
		defer close(events)
		messages := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event entities.WithdrawalEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.logger.Warn("Dropping malformed withdrawal event",
						"error", err,
						"investor_id", investorID.String())
					continue
				}
				select {
				case events <- event:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cancel := func() {
		close(done)
		_ = pubsub.Close()
	}
	return events, cancel, nil
}
