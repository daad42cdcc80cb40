package replication

import (
	"context"
	"encoding/json"
	"sync"

	"pulsewire/internal/presence"
)

// LocalReplicator is the single-process implementation: publishing is a
// no-op success and presence membership lives in memory. It is the default
// so the server works standalone.
type LocalReplicator struct {
	mu      sync.Mutex
	members map[string][]socketMember // appID:channel -> members in join order
}

type socketMember struct {
	socketID string
	member   presence.Member
}

func NewLocal() *LocalReplicator {
	return &LocalReplicator{
		members: make(map[string][]socketMember),
	}
}

func presenceKey(appID, channel string) string {
	return appID + ":" + channel
}

func (r *LocalReplicator) Publish(context.Context, string, string, string, json.RawMessage) error {
	return nil
}

func (r *LocalReplicator) Subscribe(context.Context, string, string) error {
	return nil
}

func (r *LocalReplicator) Unsubscribe(context.Context, string, string) error {
	return nil
}

func (r *LocalReplicator) JoinPresence(_ context.Context, appID, channel, socketID string, member presence.Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := presenceKey(appID, channel)
	r.members[key] = append(r.members[key], socketMember{socketID: socketID, member: member})
	return nil
}

func (r *LocalReplicator) LeavePresence(_ context.Context, appID, channel, socketID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := presenceKey(appID, channel)
	entries := r.members[key]
	for i, entry := range entries {
		if entry.socketID == socketID {
			r.members[key] = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	if len(r.members[key]) == 0 {
		delete(r.members, key)
	}
	return nil
}

func (r *LocalReplicator) PresenceMembers(_ context.Context, appID, channel string) ([]presence.Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.members[presenceKey(appID, channel)]
	members := make([]presence.Member, 0, len(entries))
	for _, entry := range entries {
		members = append(members, entry.member)
	}
	return members, nil
}

func (r *LocalReplicator) Close() error {
	return nil
}
