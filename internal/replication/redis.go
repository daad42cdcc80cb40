package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pulsewire/internal/presence"
)

const (
	// Topic is the single replication channel shared by every process in a
	// deployment. Tenant isolation is by the app_id inside the envelope.
	Topic = "pulsewire:replication"

	bootTimeout = 5 * time.Second
)

// RedisOptions configures the Redis replicator connections.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	MinIdleConns int
}

func (o RedisOptions) client() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		MaxRetries:   o.MaxRetries,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		PoolSize:     o.PoolSize,
		MinIdleConns: o.MinIdleConns,
	})
}

// RedisReplicator distributes events over Redis pub/sub and keeps presence
// membership in Redis hashes. It owns two dedicated connections, one for
// publishing and one for subscribing; they are never shared outside it.
type RedisReplicator struct {
	serverID string
	pub      *redis.Client
	sub      *redis.Client
	pubsub   *redis.PubSub

	// handlerMu guards handler: the listen goroutine starts at boot, but
	// the handler is installed afterwards, once the channel manager exists.
	handlerMu sync.RWMutex
	handler   Handler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRedis connects the publish and subscribe clients and joins the
// replication topic. Either connection failing within the boot timeout is
// fatal: the server cannot guarantee replication correctness without the
// broker. Inbound events are dropped until SetHandler installs a handler.
func NewRedis(ctx context.Context, opts RedisOptions) (*RedisReplicator, error) {
	r := &RedisReplicator{
		serverID: uuid.New().String(),
		pub:      opts.client(),
		sub:      opts.client(),
	}

	bootCtx, cancel := context.WithTimeout(ctx, bootTimeout)
	defer cancel()

	if err := r.pub.Ping(bootCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect replication publisher: %w", err)
	}
	if err := r.sub.Ping(bootCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect replication subscriber: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.pubsub = r.sub.Subscribe(r.ctx, Topic)

	// Force the SUBSCRIBE onto the wire before boot completes.
	if _, err := r.pubsub.Receive(bootCtx); err != nil {
		r.cancel()
		return nil, fmt.Errorf("subscribe replication topic: %w", err)
	}

	go r.listen()

	slog.Info("Redis replicator booted", "serverId", r.serverID, "topic", Topic)
	return r, nil
}

// ServerID is this process's identity stamped onto published envelopes.
func (r *RedisReplicator) ServerID() string {
	return r.serverID
}

// SetHandler installs the consumer for events originated by other
// processes. Safe to call while the listen goroutine is running; envelopes
// arriving before a handler exists are dropped, which is harmless since
// nothing can be subscribed that early.
func (r *RedisReplicator) SetHandler(handler Handler) {
	r.handlerMu.Lock()
	r.handler = handler
	r.handlerMu.Unlock()
}

func (r *RedisReplicator) listen() {
	ch := r.pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handlePayload([]byte(msg.Payload))
		case <-r.ctx.Done():
			return
		}
	}
}

// handlePayload decodes an inbound envelope and forwards it to the local
// handler. Envelopes stamped with this process's own server id are dropped
// to keep a message from echoing back into the channels it came from.
func (r *RedisReplicator) handlePayload(payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		slog.Error("Failed to decode replication envelope", "error", err)
		return
	}
	if env.ServerID == r.serverID {
		return
	}

	r.handlerMu.RLock()
	handler := r.handler
	r.handlerMu.RUnlock()
	if handler != nil {
		handler(env.AppID, env.Channel, env.Event, env.Data)
	}
}

func (r *RedisReplicator) Publish(ctx context.Context, appID, channel, event string, data json.RawMessage) error {
	env := Envelope{
		AppID:    appID,
		ServerID: r.serverID,
		Channel:  channel,
		Event:    event,
		Data:     data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode replication envelope: %w", err)
	}
	if err := r.pub.Publish(ctx, Topic, payload).Err(); err != nil {
		return fmt.Errorf("publish replication envelope: %w", err)
	}
	return nil
}

func occupancyKey(appID string) string {
	return "pulsewire:channels:" + appID
}

func membersKey(appID, channel string) string {
	return "pulsewire:presence:" + appID + ":" + channel
}

func (r *RedisReplicator) Subscribe(ctx context.Context, appID, channel string) error {
	return r.pub.HIncrBy(ctx, occupancyKey(appID), channel, 1).Err()
}

func (r *RedisReplicator) Unsubscribe(ctx context.Context, appID, channel string) error {
	count, err := r.pub.HIncrBy(ctx, occupancyKey(appID), channel, -1).Result()
	if err != nil {
		return err
	}
	if count <= 0 {
		return r.pub.HDel(ctx, occupancyKey(appID), channel).Err()
	}
	return nil
}

func (r *RedisReplicator) JoinPresence(ctx context.Context, appID, channel, socketID string, member presence.Member) error {
	data, err := json.Marshal(member)
	if err != nil {
		return fmt.Errorf("encode presence member: %w", err)
	}
	return r.pub.HSet(ctx, membersKey(appID, channel), socketID, data).Err()
}

func (r *RedisReplicator) LeavePresence(ctx context.Context, appID, channel, socketID string) error {
	return r.pub.HDel(ctx, membersKey(appID, channel), socketID).Err()
}

func (r *RedisReplicator) PresenceMembers(ctx context.Context, appID, channel string) ([]presence.Member, error) {
	entries, err := r.pub.HGetAll(ctx, membersKey(appID, channel)).Result()
	if err != nil {
		return nil, fmt.Errorf("load presence members: %w", err)
	}
	members := make([]presence.Member, 0, len(entries))
	for socketID, raw := range entries {
		var member presence.Member
		if err := json.Unmarshal([]byte(raw), &member); err != nil {
			slog.Error("Skipping undecodable presence member", "socketId", socketID, "error", err)
			continue
		}
		members = append(members, member)
	}
	return members, nil
}

func (r *RedisReplicator) Close() error {
	r.cancel()
	if err := r.pubsub.Close(); err != nil {
		slog.Error("Failed to close replication subscription", "error", err)
	}
	if err := r.sub.Close(); err != nil {
		slog.Error("Failed to close replication subscriber", "error", err)
	}
	return r.pub.Close()
}
