package counter

import "github.com/redis/rueidis"

// adjustScript applies a delta to an existing view counter only. It returns
// false when the counter is missing so the caller can seed it from durable
// state. A result below zero is reset to zero and flagged in the second element.
const adjustScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
local value = redis.call('INCRBY', KEYS[1], ARGV[1])
if value < 0 then
	redis.call('SET', KEYS[1], 0)
	return {0, 1}
end
return {value, 0}
`

// likeBeginScript marks a like write as in flight before the durable relation
// changes. A hash without a count expires so a crashed writer cannot pin it.
const likeBeginScript = `
redis.call('HINCRBY', KEYS[1], 'pending', 1)
redis.call('HINCRBY', KEYS[1], 'epoch', 1)
redis.call('HSET', KEYS[1], 'since', ARGV[1])
if redis.call('HEXISTS', KEYS[1], 'count') == 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 1
`

// likeFinishScript ends an in-flight write and applies its delta when the
// count exists. It returns false when the count is missing. A count below
// zero is reset to zero and flagged in the second element.
const likeFinishScript = `
local pending = redis.call('HINCRBY', KEYS[1], 'pending', -1)
if pending < 0 then
	redis.call('HSET', KEYS[1], 'pending', 0)
end
redis.call('HINCRBY', KEYS[1], 'epoch', 1)
if redis.call('HEXISTS', KEYS[1], 'count') == 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
	return false
end
local value = redis.call('HINCRBY', KEYS[1], 'count', ARGV[1])
if value < 0 then
	redis.call('HSET', KEYS[1], 'count', 0)
	return {0, 1}
end
return {value, 0}
`

// likeSeedScript writes a durable like count unless a write is in flight or
// any write began or finished since the epoch in ARGV[2] was read. Pending
// writers older than ARGV[4] milliseconds are treated as crashed. Without the
// overwrite flag an existing count is returned as is.
// Returns {0, count} when settled and {1, 0} when contended.
const likeSeedScript = `
local state = redis.call('HMGET', KEYS[1], 'count', 'pending', 'epoch', 'since')
local pending = tonumber(state[2] or '0')
local since = tonumber(state[4] or '0')
if pending > 0 and tonumber(ARGV[3]) - since < tonumber(ARGV[4]) then
	return {1, 0}
end
if (state[3] or '0') ~= ARGV[2] then
	return {1, 0}
end
if state[1] and ARGV[5] == '0' then
	return {0, tonumber(state[1])}
end
redis.call('HSET', KEYS[1], 'count', ARGV[1], 'pending', 0)
redis.call('PERSIST', KEYS[1])
return {0, tonumber(ARGV[1])}
`

type scripts struct {
	adjustView *rueidis.Lua
	likeBegin  *rueidis.Lua
	likeFinish *rueidis.Lua
	likeSeed   *rueidis.Lua
}

func newScripts() scripts {
	return scripts{
		adjustView: rueidis.NewLuaScript(adjustScript),
		likeBegin:  rueidis.NewLuaScript(likeBeginScript),
		likeFinish: rueidis.NewLuaScript(likeFinishScript),
		likeSeed:   rueidis.NewLuaScript(likeSeedScript),
	}
}
