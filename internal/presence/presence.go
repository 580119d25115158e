// Package presence tracks which users currently hold a live session, in
// redis so presence survives server restarts and is readable by other
// services. Keys are TTL'd: a crashed server's sessions age out on their own.
package presence

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	onlinePrefix   = "presence:online:"
	lastSeenPrefix = "presence:lastseen:"

	// onlineTTL must exceed the websocket ping period so heartbeats keep
	// the key alive.
	onlineTTL   = 90 * time.Second
	opTimeout   = 2 * time.Second
	lastSeenTTL = 30 * 24 * time.Hour
)

type Tracker struct {
	rdb *redis.Client
}

func NewTracker(rdb *redis.Client) *Tracker {
	return &Tracker{rdb: rdb}
}

// Connected and Heartbeat both refresh the online key; a user is online
// while any session keeps it alive.
func (t *Tracker) Connected(userID string) { t.markOnline(userID) }

func (t *Tracker) Heartbeat(userID string) { t.markOnline(userID) }

func (t *Tracker) markOnline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := t.rdb.Set(ctx, onlinePrefix+userID, "1", onlineTTL).Err(); err != nil {
		log.Printf("presence: mark online %s: %v", userID, err)
	}
}

func (t *Tracker) Disconnected(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	pipe := t.rdb.Pipeline()
	pipe.Del(ctx, onlinePrefix+userID)
	pipe.Set(ctx, lastSeenPrefix+userID, now, lastSeenTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("presence: mark offline %s: %v", userID, err)
	}
}

func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := t.rdb.Exists(ctx, onlinePrefix+userID).Result()
	return n > 0, err
}

// LastSeen returns the zero time when the user has no recorded disconnect.
func (t *Tracker) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	val, err := t.rdb.Get(ctx, lastSeenPrefix+userID).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
