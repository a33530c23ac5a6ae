package progress

import (
    "context"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "fmt"
    "strconv"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// RedisStore keeps progress in a Redis hash, one field per row. Useful when
// several operators share a box or the working directory is ephemeral.
// HSET is atomic per field, which gives the per-row update guarantee.
type RedisStore struct {
    client *redis.Client
    key    string
    meta   Meta
}

func NewRedisStore(redisURL string, meta Meta) (*RedisStore, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil {
        return nil, &PersistenceError{Op: "parse redis url", Err: err}
    }
    c := redis.NewClient(opt)
    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    if err := c.Ping(ctx).Err(); err != nil {
        return nil, &PersistenceError{Op: "redis ping", Err: err}
    }

    s := &RedisStore{client: c, key: progressKey(meta), meta: meta}
    if err := s.writeMeta(ctx); err != nil { return nil, err }
    return s, nil
}

// progressKey namespaces the hash by input file and model so concurrent
// runs against different inputs do not collide.
func progressKey(meta Meta) string {
    h := sha256.Sum256([]byte(meta.InputFile + "|" + meta.Model))
    return "aibatch:progress:" + hex.EncodeToString(h[:8])
}

func (s *RedisStore) writeMeta(ctx context.Context) error {
    m := map[string]interface{}{
        "run_id":     s.meta.RunID,
        "input_file": s.meta.InputFile,
        "model":      s.meta.Model,
        "updated_at": time.Now().UTC().Format(time.RFC3339Nano),
    }
    if err := s.client.HSet(ctx, s.key+":meta", m).Err(); err != nil {
        return &PersistenceError{Op: "write meta", Err: err}
    }
    return nil
}

func (s *RedisStore) Load(ctx context.Context) (map[int]RowStatus, error) {
    res, err := s.client.HGetAll(ctx, s.key).Result()
    if err != nil {
        return nil, &PersistenceError{Op: "load", Err: err}
    }
    rows := make(map[int]RowStatus, len(res))
    for field, raw := range res {
        id, err := strconv.Atoi(field)
        if err != nil { continue }
        var st RowStatus
        if err := json.Unmarshal([]byte(raw), &st); err != nil { continue }
        rows[id] = normalize(st)
    }
    return rows, nil
}

func (s *RedisStore) Record(ctx context.Context, rowID int, st RowStatus) error {
    b, err := json.Marshal(normalize(st))
    if err != nil {
        return &PersistenceError{Op: "encode", Err: err}
    }
    if err := s.client.HSet(ctx, s.key, strconv.Itoa(rowID), string(b)).Err(); err != nil {
        return &PersistenceError{Op: fmt.Sprintf("record row %d", rowID), Err: err}
    }
    return nil
}

func (s *RedisStore) Reset(ctx context.Context) error {
    if err := s.client.Del(ctx, s.key, s.key+":meta").Err(); err != nil {
        return &PersistenceError{Op: "reset", Err: err}
    }
    return nil
}

func (s *RedisStore) Close() error { return s.client.Close() }
