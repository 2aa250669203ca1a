package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-chat-relay/internal/domain"
)

const (
	fieldLastRead  = "last_read_message_id"
	fieldUpdatedAt = "updated_at"
)

// advanceScript raises the watermark only when ARGV[1] is larger. Ids are
// compared as decimal strings because Lua numbers lose precision above 2^53.
// Returns {advanced, last_read_message_id, updated_at}.
var advanceScript = redis.NewScript(`
local function greater(a, b)
  if #a ~= #b then return #a > #b end
  return a > b
end
local cur = redis.call("HGET", KEYS[1], "last_read_message_id")
if (not cur) or greater(ARGV[1], cur) then
  redis.call("HSET", KEYS[1], "last_read_message_id", ARGV[1], "updated_at", ARGV[2])
  return {1, ARGV[1], ARGV[2]}
end
return {0, cur, redis.call("HGET", KEYS[1], "updated_at") or "0"}
`)

// RedisReadStore keeps one hash per (room, user) pair and advances it with a
// Lua script, which Redis runs atomically.
type RedisReadStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisReadStore(client *redis.Client, prefix string) *RedisReadStore {
	return &RedisReadStore{client: client, prefix: prefix, now: time.Now}
}

func (s *RedisReadStore) keyFor(chatRoomID, userID int64) string {
	return fmt.Sprintf("%s:room:%d:user:%d", s.prefix, chatRoomID, userID)
}

func (s *RedisReadStore) Advance(ctx context.Context, chatRoomID, userID, messageID int64) (*domain.Watermark, bool, error) {
	res, err := advanceScript.Run(ctx, s.client,
		[]string{s.keyFor(chatRoomID, userID)},
		strconv.FormatInt(messageID, 10),
		strconv.FormatInt(s.now().UnixMilli(), 10),
	).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("redis advance read watermark: %w", err)
	}
	if len(res) != 3 {
		return nil, false, fmt.Errorf("redis advance read watermark: unexpected reply %v", res)
	}

	advanced, _ := res[0].(int64)
	wm, err := parseWatermark(chatRoomID, userID, res[1], res[2])
	if err != nil {
		return nil, false, err
	}
	return wm, advanced == 1, nil
}

func (s *RedisReadStore) Get(ctx context.Context, chatRoomID, userID int64) (*domain.Watermark, error) {
	vals, err := s.client.HMGet(ctx, s.keyFor(chatRoomID, userID), fieldLastRead, fieldUpdatedAt).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis get read watermark: %w", err)
	}
	if len(vals) < 2 || vals[0] == nil {
		return nil, domain.ErrWatermarkNotFound
	}
	return parseWatermark(chatRoomID, userID, vals[0], vals[1])
}

func parseWatermark(chatRoomID, userID int64, rawID, rawUpdated interface{}) (*domain.Watermark, error) {
	idStr, _ := rawID.(string)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt read watermark %v: %w", rawID, err)
	}

	wm := &domain.Watermark{ChatRoomID: chatRoomID, UserID: userID, LastReadMessageID: id}
	if updStr, ok := rawUpdated.(string); ok {
		if ms, err := strconv.ParseInt(updStr, 10, 64); err == nil && ms > 0 {
			wm.UpdatedAt = time.UnixMilli(ms).UTC()
		}
	}
	return wm, nil
}
