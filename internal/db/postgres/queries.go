// Package postgres — вспомогательные функции для работы с БД.
// queries.go содержит общие утилиты для выполнения запросов.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ExecMigrationSQL выполняет один SQL-запрос миграции в транзакции.
// Если запрос упадёт — транзакция откатится автоматически.
func ExecMigrationSQL(ctx context.Context, pool *pgxpool.Pool, version int, sql string) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	// Проверяем, не была ли эта миграция уже применена
	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ошибка проверки миграции: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
	}

	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)", version,
	); err != nil {
		return fmt.Errorf("ошибка записи версии миграции: %w", err)
	}

	return tx.Commit(ctx)
}

// Колонки rep_cooldowns и recent_reports хранятся как JSON-текст:
//
//	rep_cooldowns:  {"<id цели>": "<RFC3339>"}
//	recent_reports: ["<RFC3339>", ...]

func encodeCooldowns(m map[int64]time.Time) (string, error) {
	raw := make(map[string]string, len(m))
	for id, t := range m {
		raw[strconv.FormatInt(id, 10)] = t.UTC().Format(time.RFC3339Nano)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCooldowns(s string) (map[int64]time.Time, error) {
	out := make(map[int64]time.Time)
	if s == "" {
		return out, nil
	}
	var raw map[string]string
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("rep_cooldowns: %w", err)
	}
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("rep_cooldowns: ключ %q: %w", k, err)
		}
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("rep_cooldowns: время %q: %w", v, err)
		}
		out[id] = t
	}
	return out, nil
}

func encodeReports(list []time.Time) (string, error) {
	raw := make([]string, 0, len(list))
	for _, t := range list {
		raw = append(raw, t.UTC().Format(time.RFC3339Nano))
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeReports(s string) ([]time.Time, error) {
	if s == "" {
		return nil, nil
	}
	var raw []string
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("recent_reports: %w", err)
	}
	out := make([]time.Time, 0, len(raw))
	for _, v := range raw {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, fmt.Errorf("recent_reports: время %q: %w", v, err)
		}
		out = append(out, t)
	}
	return out, nil
}
