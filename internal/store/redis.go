package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/domain"
)

// Redis keeps meetings as TTL'd JSON values, users as plain JSON, and chat
// history in capped lists. Suited to deployments where meetings are throwaway
// and nothing needs to outlive the TTL.
type Redis struct {
	rdb        *redis.Client
	meetingTTL time.Duration
	chatCap    int64
}

func NewRedis(ctx context.Context, addr string, db int, meetingTTL time.Duration, chatCap int64) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{rdb: rdb, meetingTTL: meetingTTL, chatCap: chatCap}, nil
}

func (r *Redis) Close() error { return r.rdb.Close() }

func meetingKey(id string) string      { return "meetings:" + id }
func userKey(id string) string         { return "users:" + id }
func chatKey(id string) string         { return "chat:" + id }
func creatorKey(uid string) string     { return "creator_meetings:" + uid }
func participantsKey(id string) string { return "participants:" + id }

func (r *Redis) GetActiveMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	m, err := r.GetMeeting(ctx, id)
	if err != nil {
		return domain.Meeting{}, err
	}
	if m.Status != domain.MeetingActive {
		return domain.Meeting{}, core.ErrNotFound
	}
	return m, nil
}

func (r *Redis) GetMeeting(ctx context.Context, id string) (domain.Meeting, error) {
	val, err := r.rdb.Get(ctx, meetingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Meeting{}, core.ErrNotFound
	}
	if err != nil {
		return domain.Meeting{}, fmt.Errorf("get meeting %s: %w", id, err)
	}
	var m domain.Meeting
	if err := json.Unmarshal(val, &m); err != nil {
		return domain.Meeting{}, fmt.Errorf("decode meeting %s: %w", id, err)
	}
	return m, nil
}

func (r *Redis) CreateMeeting(ctx context.Context, m domain.Meeting) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetArgs(ctx, meetingKey(m.ID), b, redis.SetArgs{Mode: "NX", TTL: r.meetingTTL}).Result()
	if err != nil {
		return fmt.Errorf("create meeting %s: %w", m.ID, err)
	}
	if ok != "OK" {
		return fmt.Errorf("meeting %s already exists", m.ID)
	}
	if m.CreatorID != "" {
		key := creatorKey(m.CreatorID)
		pipe := r.rdb.TxPipeline()
		pipe.LPush(ctx, key, m.ID)
		pipe.LTrim(ctx, key, 0, 49)
		pipe.Expire(ctx, key, r.meetingTTL)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("index meeting %s: %w", m.ID, err)
		}
	}
	return nil
}

// EndMeeting rewrites the record under WATCH so a concurrent writer cannot
// resurrect an active status with a stale read.
func (r *Redis) EndMeeting(ctx context.Context, id string) error {
	key := meetingKey(id)
	end := func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return core.ErrNotFound
		}
		if err != nil {
			return err
		}
		var m domain.Meeting
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		now := time.Now().UTC()
		m.Status = domain.MeetingEnded
		m.EndedAt = &now
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, b, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}
	for attempt := 0; attempt < 3; attempt++ {
		err := r.rdb.Watch(ctx, end, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, core.ErrNotFound) {
			return err
		}
		if err != nil {
			return fmt.Errorf("end meeting %s: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("end meeting %s: too much write contention", id)
}

func (r *Redis) ListMeetingsByCreator(ctx context.Context, creatorID string) ([]domain.Meeting, error) {
	ids, err := r.rdb.LRange(ctx, creatorKey(creatorID), 0, 49).Result()
	if err != nil {
		return nil, fmt.Errorf("list meetings for %s: %w", creatorID, err)
	}
	out := make([]domain.Meeting, 0, len(ids))
	for _, id := range ids {
		m, err := r.GetMeeting(ctx, id)
		if errors.Is(err, core.ErrNotFound) {
			continue // record expired, index entry outlived it
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *Redis) RecordJoin(ctx context.Context, meetingID, userID string) error {
	key := participantsKey(meetingID)
	pipe := r.rdb.TxPipeline()
	pipe.SAdd(ctx, key, userID)
	pipe.Expire(ctx, key, r.meetingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record join %s/%s: %w", meetingID, userID, err)
	}
	return nil
}

func (r *Redis) GetUser(ctx context.Context, id string) (domain.User, error) {
	val, err := r.rdb.Get(ctx, userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, core.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	var u domain.User
	if err := json.Unmarshal(val, &u); err != nil {
		return domain.User{}, fmt.Errorf("decode user %s: %w", id, err)
	}
	return u, nil
}

func (r *Redis) Append(ctx context.Context, msg domain.ChatMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	key := chatKey(msg.MeetingID)
	pipe := r.rdb.TxPipeline()
	pipe.LPush(ctx, key, b)
	pipe.LTrim(ctx, key, 0, r.chatCap-1)
	pipe.Expire(ctx, key, r.meetingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}
	return nil
}
