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

const alertPrefix = "alert:"

// AlertStore is the append-only alert log, keyed per device.
type AlertStore struct {
	store *Store
	now   func() time.Time
}

// NewAlertStore returns an alert store backed by s.
func NewAlertStore(s *Store) *AlertStore {
	return &AlertStore{store: s, now: time.Now}
}

// Append stores one alert. An empty timestamp is filled with the
// current time. Returns the generated alert ID.
func (a *AlertStore) Append(ctx context.Context, deviceID, message string, level int, timestamp string) (string, error) {
	ts := a.now().UTC()
	if timestamp == "" {
		timestamp = ts.Format(time.RFC3339Nano)
	}
	alert := datatypes.Alert{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Message:   message,
		Level:     level,
		Timestamp: timestamp,
	}
	payload, err := json.Marshal(alert)
	if err != nil {
		return "", fmt.Errorf("marshal alert: %w", err)
	}
	key := fmt.Appendf(nil, "%s%s:%020d", alertPrefix, deviceID, ts.UnixNano())
	err = a.store.withUpdate(ctx, func(txn *badger.Txn) error {
		return txn.Set(key, payload)
	})
	if err != nil {
		return "", fmt.Errorf("append alert: %w", err)
	}
	return alert.ID, nil
}

// ListByDevice returns a device's alerts, newest first.
func (a *AlertStore) ListByDevice(ctx context.Context, deviceID string, limit int) ([]datatypes.Alert, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []datatypes.Alert
	err := a.store.withView(ctx, func(txn *badger.Txn) error {
		prefix := []byte(alertPrefix + deviceID + ":")
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			var alert datatypes.Alert
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &alert)
			}); err != nil {
				return fmt.Errorf("decode alert %s: %w", it.Item().Key(), err)
			}
			out = append(out, alert)
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
