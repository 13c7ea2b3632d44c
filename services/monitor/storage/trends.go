// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/aquaflow/services/monitor/datatypes"
)

const trendPrefix = "trend:"

// storedTrend is the on-disk shape of a trend record. Details is kept
// as a serialized JSON blob so the stored row stays flat; it is decoded
// back to a map on read.
type storedTrend struct {
	ID              string  `json:"id"`
	Trend           string  `json:"trend"`
	LeakProbability float64 `json:"leak_probability"`
	Recommendation  string  `json:"recommendation"`
	Details         string  `json:"details"`
	Period          string  `json:"period"`
	CreatedAt       string  `json:"created_at"`
}

// TrendStore persists interpreted analysis results.
type TrendStore struct {
	store *Store
	now   func() time.Time
}

// NewTrendStore returns a trend store backed by s.
func NewTrendStore(s *Store) *TrendStore {
	return &TrendStore{store: s, now: time.Now}
}

// Save persists one trend result, timestamping it with the current time,
// and returns the generated record ID. Details are serialized to a JSON
// text blob before storage.
func (t *TrendStore) Save(ctx context.Context, result datatypes.TrendResult) (string, error) {
	ts := t.now().UTC()
	id := uuid.NewString()

	details := result.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsBlob, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("serialize trend details: %w", err)
	}

	row := storedTrend{
		ID:              id,
		Trend:           result.Trend,
		LeakProbability: result.LeakProbability,
		Recommendation:  result.Recommendation,
		Details:         string(detailsBlob),
		Period:          result.Period,
		CreatedAt:       ts.Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("marshal trend record: %w", err)
	}

	// The ID suffix keeps two results saved in the same nanosecond from
	// overwriting each other.
	key := fmt.Appendf(nil, "%s%020d:%s", trendPrefix, ts.UnixNano(), id[:8])
	err = t.store.withUpdate(ctx, func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
	if err != nil {
		return "", fmt.Errorf("save trend record: %w", err)
	}
	return id, nil
}

// Latest returns the most recent trend results, newest first, decoding
// the stored details blob back to a map. A null or empty blob decodes
// to an empty map.
func (t *TrendStore) Latest(ctx context.Context, limit int) ([]datatypes.TrendResult, error) {
	if limit <= 0 {
		limit = 5
	}

	var out []datatypes.TrendResult
	err := t.store.withView(ctx, func(txn *badger.Txn) error {
		prefix := []byte(trendPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			var row storedTrend
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			}); err != nil {
				return fmt.Errorf("decode trend record %s: %w", it.Item().Key(), err)
			}
			out = append(out, datatypes.TrendResult{
				ID:              row.ID,
				Trend:           row.Trend,
				LeakProbability: row.LeakProbability,
				Recommendation:  row.Recommendation,
				Details:         decodeDetails(row.Details),
				Period:          row.Period,
				CreatedAt:       row.CreatedAt,
			})
			if len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// decodeDetails tolerates empty, null, and malformed stored blobs; all
// of them come back as an empty map rather than an error.
func decodeDetails(blob string) map[string]any {
	if blob == "" || blob == "null" {
		return map[string]any{}
	}
	var details map[string]any
	if err := json.Unmarshal([]byte(blob), &details); err != nil || details == nil {
		return map[string]any{}
	}
	return details
}
