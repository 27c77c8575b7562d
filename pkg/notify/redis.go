// pkg/notify/redis.go
package notify

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"imagefetch/pkg/utils"
)

// RedisOptions configures the Redis-backed Bus.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Log      *utils.Logger
}

// Redis publishes Events on a Redis pub/sub channel, letting other
// processes observe this engine's download lifecycle without touching its
// in-memory cache or coordinator state — publishing is fire-and-forget and
// never gates a download's own completion.
type Redis struct {
	client  *redis.Client
	channel string
	log     *utils.Logger
}

// NewRedis builds a Redis-backed Bus.
func NewRedis(opts RedisOptions) *Redis {
	log := opts.Log
	if log == nil {
		log = utils.NewLogger(utils.Config{})
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	channel := opts.Channel
	if channel == "" {
		channel = "imagefetch:events"
	}
	return &Redis{client: client, channel: channel, log: log}
}

// Publish JSON-encodes evt and publishes it on the configured channel.
// Errors are logged, not returned: a notification-bus failure must never
// fail the download it's reporting on.
func (r *Redis) Publish(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		r.log.WithFunc().WithError(err).Warn("notify: failed to encode event")
		return
	}
	if err := r.client.Publish(context.Background(), r.channel, payload).Err(); err != nil {
		r.log.WithFunc().WithError(err).Warn("notify: failed to publish event")
	}
}

// Close releases the underlying Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
