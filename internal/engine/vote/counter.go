package vote

import (
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"
	"github.com/robalyx/marginalia/internal/engine/core"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/pkg/score"
)

// counterScript applies floored deltas to the up/down counters of an item and
// rewrites the scores derived from the post-increment values. It runs inside
// the cast's MULTI block, so the counters are never watched and concurrent
// voters on the same item do not conflict with each other.
//
// KEYS[1] is the vote count hash, KEYS[2..] the hot indexes of the item's topics.
// ARGV: up delta, down delta, age term of the hot score, item ID, Wilson z.
// Returns the new up and down counts and the deltas actually applied.
//
// The formulas mirror score.Wilson, score.Controversy and score.Hot.
const counterScript = `
local function bump(field, delta)
	local current = tonumber(redis.call('HGET', KEYS[1], field) or '0')
	if delta < 0 and -delta > current then
		delta = -current
	end
	if delta ~= 0 then
		current = redis.call('HINCRBY', KEYS[1], field, delta)
	end
	return current, delta
end

local up, upDelta = bump('up', tonumber(ARGV[1]))
local down, downDelta = bump('down', tonumber(ARGV[2]))

local n = up + down
local wilson = 0
if n > 0 then
	local z = tonumber(ARGV[5])
	local p = up / n
	local left = p + z * z / (2 * n)
	local right = z * math.sqrt(p * (1 - p) / n + z * z / (4 * n * n))
	wilson = (left - right) / (1 + z * z / n)
end

local controversy = 0
if up > 0 and down > 0 then
	controversy = n ^ (math.min(up, down) / math.max(up, down))
end

redis.call('HSET', KEYS[1],
	'controversy', string.format('%.17g', controversy),
	'wilson', string.format('%.17g', wilson))

local s = up - down
local sign = 0
if s > 0 then
	sign = 1
elseif s < 0 then
	sign = -1
end
local hot = sign * math.log10(math.max(math.abs(s), 1)) + tonumber(ARGV[3])

-- Only comments still indexed in a topic are rescored
for i = 2, #KEYS do
	redis.call('ZADD', KEYS[i], 'XX', string.format('%.17g', hot), ARGV[4])
end

return {up, down, upDelta, downDelta}
`

// counterUpdate is the reply of counterScript.
type counterUpdate struct {
	Counts    Counts
	UpDelta   int64
	DownDelta int64
}

// queueCounters queues the counter script for an item and decodes its reply
// into update once the transaction commits.
func queueCounters(
	tx *kv.Tx, itemID string, topics []string, upDelta, downDelta int64,
	createdAt, now time.Time, update *counterUpdate,
) {
	keys := make([]string, 0, len(topics)+1)
	keys = append(keys, kv.VoteCountKey(itemID))
	for _, t := range topics {
		keys = append(keys, kv.TopicHotKey(t))
	}

	age := float64(createdAt.UnixMilli()-now.UnixMilli()) / score.HotTimeDivisor

	cmd := tx.B().Eval().Script(counterScript).Numkeys(int64(len(keys))).Key(keys...).Arg(
		strconv.FormatInt(upDelta, 10),
		strconv.FormatInt(downDelta, 10),
		core.FormatFloat(age),
		itemID,
		core.FormatFloat(score.WilsonZ),
	).Build()

	tx.QueueFunc(cmd, func(msg rueidis.RedisMessage) error {
		values, err := msg.AsIntSlice()
		if err != nil {
			return fmt.Errorf("failed to decode vote counters: %w", err)
		}
		if len(values) != 4 {
			return fmt.Errorf("%w: vote counter reply has %d values", core.ErrStorageUnavailable, len(values))
		}

		*update = counterUpdate{
			Counts:    NewCounts(uint64(values[0]), uint64(values[1])),
			UpDelta:   values[2],
			DownDelta: values[3],
		}
		return nil
	})
}
