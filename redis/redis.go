package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gomultibridge/config"
	"gomultibridge/logger"
	"gomultibridge/storage"
	"gomultibridge/types"

	"github.com/gomodule/redigo/redis"
	"github.com/google/uuid"
)

const (
	keySchema       = "transfers:schema"
	keyOngoing      = "transfers:ongoing"
	keyCompleted    = "transfers:completed"
	keyCompletedIDs = "transfers:completed:ids"
	// change notifications, payload is "<instance>:<transfer id>"
	channelChanges = "transfers:changes"
)

func timeoutDialOptions() []redis.DialOption {
	return []redis.DialOption{
		redis.DialConnectTimeout(5 * time.Second),
		redis.DialReadTimeout(5 * time.Second),
		redis.DialWriteTimeout(5 * time.Second),
	}
}

func NewPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     5,
		IdleTimeout: 240 * time.Second,
		Dial:        func() (redis.Conn, error) { return redis.Dial("tcp", addr, timeoutDialOptions()...) },
	}
}

// Init builds the pool from the global configuration
func Init() *redis.Pool {
	redisAddr := fmt.Sprintf("%s:%d", config.Config.Server.RedisHost, config.Config.Server.RedisPort)
	return NewPool(redisAddr)
}

// KEYS ongoing, completed list, completed ids; ARGV id, json
var addScript = redis.NewScript(3, `
if redis.call('SISMEMBER', KEYS[3], ARGV[1]) == 1 then return 0 end
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
return 1
`)

// KEYS ongoing; ARGV id, json read by the caller, new json.
// Returns 0 when the id is gone, -1 when the record changed since it was read.
var updateScript = redis.NewScript(1, `
local cur = redis.call('HGET', KEYS[1], ARGV[1])
if not cur then return 0 end
if cur ~= ARGV[2] then return -1 end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
return 1
`)

// rounds of read, change, compare-and-set before giving up
const maxUpdateAttempts = 8

// KEYS ongoing, completed list, completed ids; ARGV id, record head, record tail.
// The stored ongoing record is wrapped as is, so a concurrent update
// cannot be lost between reading and moving it.
var completeScript = redis.NewScript(3, `
if redis.call('SISMEMBER', KEYS[3], ARGV[1]) == 1 then return 0 end
local t = redis.call('HGET', KEYS[1], ARGV[1])
if not t then return 0 end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('RPUSH', KEYS[2], ARGV[2] .. t .. ARGV[3])
redis.call('SADD', KEYS[3], ARGV[1])
return 1
`)

// Store keeps transfers in a redis hash (ongoing) and list (completed)
type Store struct {
	storage.Listeners

	pool     *redis.Pool
	log      logger.Logger
	instance string
}

// New migrates the stored records to the current schema before returning
func New(pool *redis.Pool, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NoopLogger{}
	}
	s := &Store{pool: pool, log: log, instance: uuid.New().String()}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	conn := s.pool.Get()
	defer conn.Close()

	version, err := redis.Int(conn.Do("GET", keySchema))
	if errors.Is(err, redis.ErrNil) {
		n, err := redis.Int(conn.Do("HLEN", keyOngoing))
		if err != nil {
			return err
		}
		m, err := redis.Int(conn.Do("LLEN", keyCompleted))
		if err != nil {
			return err
		}
		version = types.SchemaVersion
		if n+m > 0 {
			// data written before the schema key existed
			version = 1
		}
	} else if err != nil {
		return err
	}

	switch {
	case version == types.SchemaVersion:
		_, err = conn.Do("SET", keySchema, types.SchemaVersion)
		return err
	case version > types.SchemaVersion:
		s.log.Warn("redis holds transfers of a newer version, starting empty", map[string]any{"schemaVersion": version})
		if _, err := conn.Do("DEL", keyOngoing, keyCompleted, keyCompletedIDs); err != nil {
			return err
		}
		_, err = conn.Do("SET", keySchema, types.SchemaVersion)
		return err
	}

	ongoing, err := redis.StringMap(conn.Do("HGETALL", keyOngoing))
	if err != nil {
		return err
	}
	completed, err := redis.ByteSlices(conn.Do("LRANGE", keyCompleted, 0, -1))
	if err != nil {
		return err
	}

	if err := conn.Send("MULTI"); err != nil {
		return err
	}
	for id, raw := range ongoing {
		t, err := storage.MigrateOngoing([]byte(raw), version)
		if err != nil {
			conn.Do("DISCARD")
			return fmt.Errorf("ongoing record %s: %w", id, err)
		}
		b, err := json.Marshal(t)
		if err != nil {
			conn.Do("DISCARD")
			return err
		}
		conn.Send("HSET", keyOngoing, id, b)
	}
	conn.Send("DEL", keyCompleted, keyCompletedIDs)
	for _, raw := range completed {
		c, err := storage.MigrateCompleted(raw, version)
		if err != nil {
			conn.Do("DISCARD")
			return fmt.Errorf("completed record: %w", err)
		}
		b, err := json.Marshal(c)
		if err != nil {
			conn.Do("DISCARD")
			return err
		}
		conn.Send("RPUSH", keyCompleted, b)
		conn.Send("SADD", keyCompletedIDs, c.Transfer.ID)
	}
	conn.Send("SET", keySchema, types.SchemaVersion)
	if _, err := conn.Do("EXEC"); err != nil {
		return err
	}

	s.log.Info("migrated redis transfers", map[string]any{
		"from": version, "to": types.SchemaVersion, "ongoing": len(ongoing), "completed": len(completed),
	})
	return nil
}

// changed publishes the change to other instances and notifies local listeners
func (s *Store) changed(conn redis.Conn, id string) {
	if _, err := conn.Do("PUBLISH", channelChanges, s.instance+":"+id); err != nil {
		s.log.Warn("cannot publish transfer change", map[string]any{"id": id, "error": err})
	}
	s.Notify()
}

func encode(t *types.OngoingTransfer) ([]byte, error) {
	c := *t
	c.SchemaVersion = types.SchemaVersion
	b, err := json.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("cannot marshal transfer to JSON: %s", err.Error())
	}
	return b, nil
}

func (s *Store) AddOngoing(ctx context.Context, t *types.OngoingTransfer) error {
	if t == nil || t.ID == "" {
		return errors.New("transfer without id")
	}
	b, err := encode(t)
	if err != nil {
		return err
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	added, err := redis.Int(addScript.Do(conn, keyOngoing, keyCompleted, keyCompletedIDs, t.ID, b))
	if err != nil {
		s.log.Error("redis add transfer failed", map[string]any{"id": t.ID, "error": err})
		return err
	}
	if added == 0 {
		return storage.ErrDuplicate
	}
	s.changed(conn, t.ID)
	return nil
}

func (s *Store) UpdateOngoing(ctx context.Context, id string, change storage.Change) (*types.OngoingTransfer, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		raw, err := redis.Bytes(conn.Do("HGET", keyOngoing, id))
		if errors.Is(err, redis.ErrNil) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		var t types.OngoingTransfer
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("cannot decode ongoing transfer %s: %w", id, err)
		}
		if !change(&t) {
			return &t, nil
		}
		t.ID = id
		b, err := encode(&t)
		if err != nil {
			return nil, err
		}

		res, err := redis.Int(updateScript.Do(conn, keyOngoing, id, raw, b))
		if err != nil {
			s.log.Error("redis update transfer failed", map[string]any{"id": id, "error": err})
			return nil, err
		}
		switch res {
		case 0:
			return nil, nil
		case 1:
			t.SchemaVersion = types.SchemaVersion
			s.changed(conn, id)
			return &t, nil
		}
	}
	s.log.Warn("transfer update kept conflicting", map[string]any{"id": id, "attempts": maxUpdateAttempts})
	return nil, storage.ErrConflict
}

func (s *Store) RemoveOngoing(ctx context.Context, id string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	n, err := redis.Int(conn.Do("HDEL", keyOngoing, id))
	if err != nil {
		return err
	}
	if n > 0 {
		s.changed(conn, id)
	}
	return nil
}

func (s *Store) ListOngoing(ctx context.Context) ([]*types.OngoingTransfer, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	values, err := redis.ByteSlices(conn.Do("HVALS", keyOngoing))
	if err != nil {
		return nil, err
	}
	out := make([]*types.OngoingTransfer, 0, len(values))
	for _, v := range values {
		var t types.OngoingTransfer
		if err := json.Unmarshal(v, &t); err != nil {
			// skip a corrupt record instead of hiding every other transfer
			s.log.Error("cannot decode ongoing transfer", map[string]any{"error": err})
			continue
		}
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// completedTail renders the fields of a completed record after the transfer
func completedTail(result types.Result, explorerLink string, at time.Time) (string, error) {
	b, err := json.Marshal(struct {
		Result       types.Result `json:"result"`
		ExplorerLink string       `json:"explorerLink,omitempty"`
		CompletedAt  time.Time    `json:"completedAt"`
	}{result, explorerLink, at.UTC()})
	if err != nil {
		return "", err
	}
	return "," + strings.TrimPrefix(string(b), "{"), nil
}

func (s *Store) Complete(ctx context.Context, id string, result types.Result, explorerLink string, at time.Time) (bool, error) {
	tail, err := completedTail(result, explorerLink, at)
	if err != nil {
		return false, err
	}
	head := fmt.Sprintf(`{"schemaVersion":%d,"transfer":`, types.SchemaVersion)

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	moved, err := redis.Int(completeScript.Do(conn, keyOngoing, keyCompleted, keyCompletedIDs, id, head, tail))
	if err != nil {
		s.log.Error("redis complete transfer failed", map[string]any{"id": id, "error": err})
		return false, err
	}
	if moved == 0 {
		return false, nil
	}
	s.changed(conn, id)
	return true, nil
}

func (s *Store) ListCompleted(ctx context.Context) ([]*types.CompletedTransfer, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	values, err := redis.ByteSlices(conn.Do("LRANGE", keyCompleted, 0, -1))
	if err != nil {
		return nil, err
	}
	out := make([]*types.CompletedTransfer, 0, len(values))
	for _, v := range values {
		var c types.CompletedTransfer
		if err := json.Unmarshal(v, &c); err != nil {
			s.log.Error("cannot decode completed transfer", map[string]any{"error": err})
			continue
		}
		out = append(out, &c)
	}
	return out, nil
}

// Watch forwards changes published by other instances to local listeners
// until ctx ends
func (s *Store) Watch(ctx context.Context) error {
	psc := redis.PubSubConn{Conn: s.pool.Get()}
	defer psc.Close()

	if err := psc.Subscribe(channelChanges); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		psc.Unsubscribe()
	}()

	prefix := s.instance + ":"
	for {
		// no read deadline, the channel can stay quiet for hours
		switch m := psc.ReceiveWithTimeout(0).(type) {
		case redis.Message:
			if !strings.HasPrefix(string(m.Data), prefix) {
				s.Notify()
			}
		case redis.Subscription:
			if m.Count == 0 {
				return ctx.Err()
			}
		case error:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return m
		}
	}
}
