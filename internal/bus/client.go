package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/luffy-robotics/luffy/internal/logger"
)

const (
	// channelBuffer is the capacity of a subscription's delivery channel.
	channelBuffer = 64

	// dialTimeout bounds one broker connection attempt.
	dialTimeout = 5 * time.Second

	// connectInitialInterval is the first wait between connection retries.
	connectInitialInterval = time.Second

	// connectMaxInterval caps the wait between connection retries.
	connectMaxInterval = 10 * time.Second

	// connectMaxElapsed bounds the initial connection retry loop. Services
	// regularly boot before the broker does, so the window is generous.
	connectMaxElapsed = 2 * time.Minute
)

// Message is one delivery from the local bus.
type Message struct {
	// Topic is the concrete topic the message was published on.
	Topic string
	// Payload is the raw message body.
	Payload string
}

// Client is one process's connection to the local pub/sub bus. The local
// channel is a Redis broker; topics keep the MQTT shape used across the
// fleet ("luffy/<service>/health"), with "+" matching exactly one segment
// and a trailing "#" matching everything after.
type Client struct {
	name   string
	client *redis.Client
}

// New returns an unconnected Client. The name identifies the process in logs.
func New(name, address, password string) *Client {
	return &Client{
		name: name,
		client: redis.NewClient(&redis.Options{
			Addr:        address,
			Password:    password,
			DialTimeout: dialTimeout,
		}),
	}
}

// Connect verifies the broker is reachable, retrying with capped exponential
// backoff so services survive a broker that comes up after they do.
func (c *Client) Connect(ctx context.Context) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = connectInitialInterval
	policy.MaxInterval = connectMaxInterval
	policy.MaxElapsedTime = connectMaxElapsed

	attempt := 0

	operation := func() error {
		attempt++

		if err := c.client.Ping(ctx).Err(); err != nil {
			logger.WarnKV(ctx, "Bus not reachable yet",
				"client", c.name, "attempt", attempt, "error", err)

			return err
		}

		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}

	logger.InfoKV(ctx, "Connected to bus", "client", c.name)

	return nil
}

// Publish sends a payload to a concrete topic.
func (c *Client) Publish(ctx context.Context, topic, payload string) error {
	if err := c.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	return nil
}

// Subscribe delivers messages matching any of the patterns on the returned
// channel. The channel closes when ctx is cancelled. Messages for a slow
// consumer are dropped rather than blocking the bus loop; periodic health
// traffic makes every drop recoverable on the next report.
func (c *Client) Subscribe(ctx context.Context, patterns ...string) (<-chan Message, error) {
	globs := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		globs = append(globs, toRedisPattern(pattern))
	}

	sub := c.client.PSubscribe(ctx, globs...)

	// Force the subscription onto the wire before callers depend on it.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()

		return nil, fmt.Errorf("subscribe %v: %w", patterns, err)
	}

	logger.InfoKV(ctx, "Subscribed", "client", c.name, "patterns", patterns)

	out := make(chan Message, channelBuffer)

	go func() {
		defer close(out)
		defer func() {
			_ = sub.Close()
		}()

		// The broker-side glob is a superset of the MQTT pattern (a Redis
		// "*" crosses segment boundaries), so every delivery is re-checked
		// against the original patterns here.
		deliveries := sub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}

				if !matchesAny(patterns, delivery.Channel) {
					continue
				}

				select {
				case out <- Message{Topic: delivery.Channel, Payload: delivery.Payload}:
				default:
					logger.WarnKV(ctx, "Dropping bus message, consumer too slow",
						"topic", delivery.Channel)
				}
			}
		}
	}()

	return out, nil
}

// Close tears down the broker connection and every subscription on it.
func (c *Client) Close() error {
	return c.client.Close()
}
