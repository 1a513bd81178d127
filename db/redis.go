package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"krishimitra/predict"
)

// predictionsKept bounds each model's audit list in redis.
const predictionsKept = 1000

// Redis keeps snapshots as JSON strings under sensor:<device> and the audit
// log as capped lists under predictions:<model>.
type Redis struct {
	client *redis.Client
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(ctx context.Context, addr, password string, database int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: database})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis %s: %w", addr, err)
	}
	return &Redis{client: client}, nil
}

func snapshotKey(device string) string {
	return "sensor:" + device
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Get(ctx context.Context, device string) (Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey(device)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap := Snapshot{}
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", device, err)
	}
	return snap, nil
}

func (r *Redis) Put(ctx context.Context, device string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, snapshotKey(device), data, 0).Err()
}

// Update merges fields into the snapshot under an optimistic WATCH
// transaction, retrying a few times on conflict.
func (r *Redis) Update(ctx context.Context, device string, fields map[string]any) (Snapshot, error) {
	key := snapshotKey(device)
	var merged Snapshot

	txf := func(tx *redis.Tx) error {
		snap := Snapshot{}
		data, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, &snap); err != nil {
				return fmt.Errorf("decode snapshot %s: %w", device, err)
			}
		}
		for k, v := range fields {
			snap[k] = v
		}
		out, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			merged = snap
		}
		return err
	}

	for i := 0; i < 5; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return merged, nil
	}
	return nil, fmt.Errorf("update %s: too many concurrent writers", device)
}

// RecordPrediction pushes rec onto the model's capped audit list.
func (r *Redis) RecordPrediction(ctx context.Context, rec predict.Record) error {
	payload, err := json.Marshal(map[string]any{
		"model":      rec.Model,
		"features":   rec.Features,
		"output":     rec.Output,
		"created_at": rec.At.UTC(),
	})
	if err != nil {
		return err
	}
	key := "predictions:" + rec.Model
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, predictionsKept-1)
		return nil
	})
	return err
}
