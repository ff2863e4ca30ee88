// Package leaderboard keeps a Redis sorted set of points earned by drivers.
// The consumer writes it from settlement events; the API reads the top slice.
package leaderboard

import (
	"context"

	"github.com/redis/go-redis/v9"
)

type Entry struct {
	UserID string `json:"user_id"`
	Points int    `json:"points"`
}

type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(addr, password, key string) *Redis {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &Redis{client: c, key: key}
}

// Record adds points to a driver's all-time earnings.
func (r *Redis) Record(ctx context.Context, driverID string, points int) error {
	return r.client.ZIncrBy(ctx, r.key, float64(points), driverID).Err()
}

// Top returns the n highest earners, best first.
func (r *Redis) Top(ctx context.Context, n int) ([]Entry, error) {
	res, err := r.client.ZRevRangeWithScores(ctx, r.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(res))
	for _, z := range res {
		id, _ := z.Member.(string)
		out = append(out, Entry{UserID: id, Points: int(z.Score)})
	}
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func (r *Redis) Close() error { return r.client.Close() }
