package presence

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusUnknown Status = "unknown"
)

// Config holds the two independent expiries. SocketsTTL is expected to be
// the longer one so a user's socket set outlives a missed heartbeat.
type Config struct {
	StatusTTL  time.Duration
	SocketsTTL time.Duration
}

// Tracker keeps per-user presence in the shared cache:
//
//	user:<id>          status string, StatusTTL, re-armed on heartbeat
//	user:<id>:sockets  set of socket ids, SocketsTTL, re-armed on every add
//
// Every mutation is a single MULTI or a single script, so concurrent
// connects and disconnects of one user need no lock. The two keys expire
// independently; a crashed gateway leaves the user ONLINE until StatusTTL
// runs out, and that transition is never broadcast.
type Tracker struct {
	rdb  redis.UniversalClient
	conf Config

	luaRemove *redis.Script
}

// KEYS[1] = sockets set, KEYS[2] = status key
// ARGV[1] = socket id,   ARGV[2] = sockets TTL in ms
// Returns 1 when this call removed the last socket (status deleted), else 0.
// Keeping SREM, SCARD and DEL in one script means a socket added between the
// emptiness check and the delete cannot be wiped.
const luaRemoveConnection = `
local removed = redis.call("SREM", KEYS[1], ARGV[1])
if redis.call("SCARD", KEYS[1]) == 0 then
  redis.call("DEL", KEYS[1])
  redis.call("DEL", KEYS[2])
  if removed == 1 then
    return 1
  end
  return 0
end
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 0
`

func NewTracker(rdb redis.UniversalClient, conf Config) *Tracker {
	return &Tracker{
		rdb:       rdb,
		conf:      conf,
		luaRemove: redis.NewScript(luaRemoveConnection),
	}
}

func statusKey(userID string) string  { return "user:" + userID }
func socketsKey(userID string) string { return "user:" + userID + ":sockets" }

// AddConnection records socketID for userID. becameOnline is true when the
// status key did not exist before this call.
func (t *Tracker) AddConnection(ctx context.Context, userID, socketID string) (becameOnline bool, err error) {
	pipe := t.rdb.TxPipeline()
	pipe.SAdd(ctx, socketsKey(userID), socketID)
	pipe.PExpire(ctx, socketsKey(userID), t.conf.SocketsTTL)
	created := pipe.SetNX(ctx, statusKey(userID), string(StatusOnline), t.conf.StatusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrapf(err, "presence add user=%s socket=%s", userID, socketID)
	}
	return created.Val(), nil
}

// RemoveConnection drops socketID. wentOffline is true only for the call
// that removed the user's last socket; the caller broadcasts it.
func (t *Tracker) RemoveConnection(ctx context.Context, userID, socketID string) (wentOffline bool, err error) {
	rc, err := t.luaRemove.Run(ctx, t.rdb,
		[]string{socketsKey(userID), statusKey(userID)},
		socketID, t.conf.SocketsTTL.Milliseconds(),
	).Int64()
	if err != nil {
		return false, errors.Wrapf(err, "presence remove user=%s socket=%s", userID, socketID)
	}
	return rc == 1, nil
}

// RefreshTTL handles a client heartbeat: re-arms the status (creating it
// ONLINE if it had expired) and makes sure socketID is in the set.
// created reports that the status key had to be recreated.
func (t *Tracker) RefreshTTL(ctx context.Context, userID, socketID string) (created bool, err error) {
	pipe := t.rdb.TxPipeline()
	existed := pipe.Exists(ctx, statusKey(userID))
	pipe.Set(ctx, statusKey(userID), string(StatusOnline), t.conf.StatusTTL)
	pipe.SAdd(ctx, socketsKey(userID), socketID)
	pipe.PExpire(ctx, socketsKey(userID), t.conf.SocketsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrapf(err, "presence refresh user=%s socket=%s", userID, socketID)
	}
	return existed.Val() == 0, nil
}

// GetStatus reads the status key. An absent key is OFFLINE.
func (t *Tracker) GetStatus(ctx context.Context, userID string) (Status, error) {
	v, err := t.rdb.Get(ctx, statusKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return StatusOffline, nil
	}
	if err != nil {
		return StatusUnknown, errors.Wrapf(err, "presence status user=%s", userID)
	}
	if Status(v) == StatusOnline {
		return StatusOnline, nil
	}
	return StatusUnknown, nil
}

func (t *Tracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	s, err := t.GetStatus(ctx, userID)
	if err != nil {
		return false, err
	}
	return s == StatusOnline, nil
}

// Sockets lists the socket ids currently recorded for userID.
func (t *Tracker) Sockets(ctx context.Context, userID string) ([]string, error) {
	ids, err := t.rdb.SMembers(ctx, socketsKey(userID)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "presence sockets user=%s", userID)
	}
	return ids, nil
}
