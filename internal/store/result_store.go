package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stemsi/exstem-exam-engine/internal/config"
	"github.com/stemsi/exstem-exam-engine/internal/model"
)

// ResultStore keeps the last successful result snapshot per exam.
type ResultStore struct {
	kv   KV
	keys *config.CacheKeyStruct
}

func NewResultStore(kv KV, keys *config.CacheKeyStruct) *ResultStore {
	return &ResultStore{kv: kv, keys: keys}
}

func (s *ResultStore) Save(ctx context.Context, examID string, snap model.ExamResultSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return s.kv.Set(ctx, s.keys.ExamResultKey(examID), b)
}

// Load returns ErrKeyNotFound when the exam has no stored result.
func (s *ResultStore) Load(ctx context.Context, examID string) (*model.ExamResultSnapshot, error) {
	raw, err := s.kv.Get(ctx, s.keys.ExamResultKey(examID))
	if err != nil {
		return nil, err
	}
	var snap model.ExamResultSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &snap, nil
}
