package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	aterrors "github.com/airtimehq/airtime/pkg/errors"
	"github.com/airtimehq/airtime/pkg/meeting"
)

// Redis key prefix for persisted records.
const keyPrefix = "airtime:"

// RedisStore persists records in redis. Used when the popout channel runs
// over redis anyway, so a cold-starting popout on the same host can read
// the meeting snapshot without filesystem access.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store over an established client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) write(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding %s: %v", aterrors.ErrStorageWrite, key, err)
	}
	if err := s.client.Set(ctx, keyPrefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", aterrors.ErrStorageWrite, err)
	}
	return nil
}

func (s *RedisStore) read(ctx context.Context, key string, v interface{}) error {
	data, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return fmt.Errorf("%w: %s", aterrors.ErrNotFound, key)
		}
		return fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", aterrors.ErrMalformed, key, err)
	}
	return nil
}

// SaveCurrentMeeting persists the in-progress meeting.
func (s *RedisStore) SaveCurrentMeeting(ctx context.Context, m *meeting.Meeting) error {
	return s.write(ctx, KeyCurrentMeeting, m)
}

// LoadCurrentMeeting returns the in-progress meeting.
func (s *RedisStore) LoadCurrentMeeting(ctx context.Context) (*meeting.Meeting, error) {
	var m meeting.Meeting
	if err := s.read(ctx, KeyCurrentMeeting, &m); err != nil {
		return nil, err
	}
	m.Normalize()
	return &m, nil
}

// SaveCompletedMeeting persists the finalized meeting.
func (s *RedisStore) SaveCompletedMeeting(ctx context.Context, m *meeting.Meeting) error {
	return s.write(ctx, KeyCompletedMeeting, m)
}

// LoadCompletedMeeting returns the finalized meeting.
func (s *RedisStore) LoadCompletedMeeting(ctx context.Context) (*meeting.Meeting, error) {
	var m meeting.Meeting
	if err := s.read(ctx, KeyCompletedMeeting, &m); err != nil {
		return nil, err
	}
	m.Normalize()
	return &m, nil
}

// SaveSetupData persists the setup record.
func (s *RedisStore) SaveSetupData(ctx context.Context, data *SetupData) error {
	return s.write(ctx, KeySetupMeetingData, data)
}

// LoadSetupData returns the setup record.
func (s *RedisStore) LoadSetupData(ctx context.Context) (*SetupData, error) {
	var data SetupData
	if err := s.read(ctx, KeySetupMeetingData, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Clear removes all meeting records.
func (s *RedisStore) Clear(ctx context.Context) error {
	keys := []string{
		keyPrefix + KeyCurrentMeeting,
		keyPrefix + KeySetupMeetingData,
		keyPrefix + KeyCompletedMeeting,
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clearing meeting records: %w", err)
	}
	return nil
}
