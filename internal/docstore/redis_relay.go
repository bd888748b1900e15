package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	opRelayNew     = "docstore.relay.new"
	opRelayPublish = "docstore.relay.publish"
	opRelayForward = "docstore.relay.forward"

	reasonMissingRedis    = "missing_redis_client"
	reasonEncodeFailed    = "encode_failed"
	reasonPublishFailed   = "publish_failed"
	reasonSubscribeFailed = "subscribe_failed"
	reasonDecodeFailed    = "decode_failed"
)

// DefaultChannelPrefix prefixes the per-collection relay channels.
const DefaultChannelPrefix = "roomboard:changes:"

var errMissingRedisClient = errors.New("redis client is required")

type RedisRelayConfig struct {
	Client        *redis.Client
	ChannelPrefix string
	Origin        string
	Logger        *zap.Logger
}

// RedisRelay carries change messages between processes over Redis pub/sub,
// one channel per collection.
type RedisRelay struct {
	client        *redis.Client
	channelPrefix string
	origin        string
	logger        *zap.Logger
}

func NewRedisRelay(cfg RedisRelayConfig) (*RedisRelay, error) {
	if cfg.Client == nil {
		return nil, newServiceError(opRelayNew, reasonMissingRedis, errMissingRedisClient)
	}
	prefix := strings.TrimSpace(cfg.ChannelPrefix)
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &RedisRelay{
		client:        cfg.Client,
		channelPrefix: prefix,
		origin:        cfg.Origin,
		logger:        logger,
	}, nil
}

// Publish sends message on the channel of its collection.
func (relay *RedisRelay) Publish(ctx context.Context, message ChangeMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return newServiceError(opRelayPublish, reasonEncodeFailed, err)
	}
	if err := relay.client.Publish(ctx, relay.channelPrefix+message.Collection, payload).Err(); err != nil {
		return newServiceError(opRelayPublish, reasonPublishFailed, err)
	}
	return nil
}

// Forward republishes messages from other origins into dispatcher until ctx
// ends or the returned stop function runs. It returns once the pattern
// subscription is confirmed by the server.
func (relay *RedisRelay) Forward(ctx context.Context, dispatcher *Dispatcher) (func(), error) {
	pubsub := relay.client.PSubscribe(ctx, relay.channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		relay.logger.Error("docstore error",
			zap.String("operation", opRelayForward),
			zap.String("reason", reasonSubscribeFailed),
			zap.Error(err))
		return nil, newServiceError(opRelayForward, reasonSubscribeFailed, err)
	}

	messages := pubsub.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case received, ok := <-messages:
				if !ok {
					return
				}
				var message ChangeMessage
				if err := json.Unmarshal([]byte(received.Payload), &message); err != nil {
					relay.logger.Warn("relay message discarded",
						zap.String("operation", opRelayForward),
						zap.String("reason", reasonDecodeFailed),
						zap.String("channel", received.Channel),
						zap.Error(err))
					continue
				}
				if message.Origin == relay.origin {
					continue
				}
				if message.Collection == "" {
					message.Collection = strings.TrimPrefix(received.Channel, relay.channelPrefix)
				}
				dispatcher.Publish(message)
			}
		}
	}()

	stop := func() {
		_ = pubsub.Close()
		<-done
	}
	return stop, nil
}
