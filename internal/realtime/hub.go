// Package realtime fans chat events out to connected clients via Redis pub/sub.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"devhub/api/internal/store"
)

// Event is the wire format published for every chat message.
type Event struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	SenderID    string `json:"sender_id"`
	SenderName  string `json:"sender_name,omitempty"`
	RecipientID string `json:"recipient_id,omitempty"`
	Body        string `json:"body"`
	MessageID   string `json:"message_id"`
	CreatedAt   string `json:"created_at"`
}

// Hub publishes and subscribes to chat channels backed by Redis.
type Hub struct {
	client *redis.Client
}

func NewHub(client *redis.Client) *Hub {
	return &Hub{client: client}
}

// NewHubFromURL connects to Redis and returns a hub, verifying the connection.
func NewHubFromURL(ctx context.Context, redisURL string) (*Hub, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Hub{client: client}, nil
}

// ChannelForWorkspace names the pub/sub channel for a workspace room.
func ChannelForWorkspace(workspaceID string) string {
	return "chat:" + workspaceID
}

// ChannelForDirect names the pub/sub channel for a direct conversation.
// The two user IDs are ordered so both participants derive the same name.
func ChannelForDirect(userA, userB string) string {
	ids := []string{userA, userB}
	sort.Strings(ids)
	return "dm:" + ids[0] + ":" + ids[1]
}

// PublishMessage broadcasts a stored chat message to its channel.
func (h *Hub) PublishMessage(ctx context.Context, msg store.ChatMessage) error {
	event := Event{
		Type:        "message",
		WorkspaceID: msg.WorkspaceID,
		SenderID:    msg.SenderID,
		SenderName:  msg.SenderName,
		RecipientID: msg.RecipientID,
		Body:        msg.Body,
		MessageID:   msg.ID,
		CreatedAt:   msg.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal chat event: %w", err)
	}

	channel := ChannelForWorkspace(msg.WorkspaceID)
	if msg.RecipientID != "" {
		channel = ChannelForDirect(msg.SenderID, msg.RecipientID)
	}

	if err := h.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish chat event: %w", err)
	}
	return nil
}

// Subscribe opens a subscription on the named channels. Callers receive
// events on the returned Go channel until ctx is cancelled.
func (h *Hub) Subscribe(ctx context.Context, channels ...string) (<-chan Event, func() error) {
	sub := h.client.Subscribe(ctx, channels...)
	out := make(chan Event, 16)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, sub.Close
}

// Close closes the Redis connection.
func (h *Hub) Close() error {
	return h.client.Close()
}

// Ping checks if Redis is reachable.
func (h *Hub) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}
