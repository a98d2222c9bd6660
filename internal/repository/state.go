package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/habitloop/backend/pkg/supabase"
)

type stateRepository struct {
	client *supabase.Client
}

// NewStateRepository creates a state repository backed by the app_state table
func NewStateRepository(client *supabase.Client) StateRepository {
	return &stateRepository{client: client}
}

type stateRow struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (r *stateRepository) Get(ctx context.Context, key string) ([]byte, error) {
	body, err := r.client.Query("app_state", map[string]interface{}{
		"key":    fmt.Sprintf("eq.%s", key),
		"select": "key,value",
		"limit":  1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read state %q: %w", key, err)
	}

	var rows []stateRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state %q: %w", key, err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	return rows[0].Value, nil
}

func (r *stateRepository) Set(ctx context.Context, key string, value []byte) error {
	data := map[string]interface{}{
		"key":   key,
		"value": json.RawMessage(value),
	}

	if _, err := r.client.Upsert("app_state", data, "key"); err != nil {
		return fmt.Errorf("failed to write state %q: %w", key, err)
	}

	return nil
}

func (r *stateRepository) Delete(ctx context.Context, key string) error {
	err := r.client.DeleteWhere("app_state", map[string]interface{}{
		"key": fmt.Sprintf("eq.%s", key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete state %q: %w", key, err)
	}

	return nil
}
