package relay

import (
	"context"
	"fmt"
	"sync"

	"hkms/internal/hub"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type RedisRelay struct {
	client    *redis.Client
	channel   string
	sink      Sink
	logger    *zap.Logger
	ready     chan struct{}
	readyOnce sync.Once
}

func NewRedis(opts RedisOptions, sink Sink, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{
		client: redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		channel: opts.Channel,
		sink:    sink,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Ping checks the connection to redis.
func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRelay) Publish(ctx context.Context, event hub.Event) error {
	payload, err := hub.Encode(event)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info("relay subscribed", zap.String("driver", "redis"), zap.String("channel", r.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.sink.Deliver([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) Ready() <-chan struct{} {
	return r.ready
}

func (r *RedisRelay) Close() error {
	return r.client.Close()
}
