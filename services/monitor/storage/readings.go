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
	"math"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/aquaflow/services/monitor/datatypes"
)

const readingPrefix = "reading:"

// readingKey orders readings chronologically; the device suffix keeps
// simultaneous readings from distinct devices from colliding.
func readingKey(ts time.Time, deviceID string) []byte {
	return fmt.Appendf(nil, "%s%020d:%s", readingPrefix, ts.UnixNano(), deviceID)
}

// ReadingStore is the append-only telemetry log.
type ReadingStore struct {
	store *Store
	// now is swappable for tests.
	now func() time.Time
}

// NewReadingStore returns a reading store backed by s.
func NewReadingStore(s *Store) *ReadingStore {
	return &ReadingStore{store: s, now: time.Now}
}

// Append stores one reading and returns it with its generated ID and
// timestamp filled in. Readings are never updated or deleted.
func (r *ReadingStore) Append(ctx context.Context, deviceID string, value float64) (datatypes.Reading, error) {
	ts := r.now().UTC()
	reading := datatypes.Reading{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		Value:     value,
		Timestamp: ts.Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(reading)
	if err != nil {
		return datatypes.Reading{}, fmt.Errorf("marshal reading: %w", err)
	}
	err = r.store.withUpdate(ctx, func(txn *badger.Txn) error {
		return txn.Set(readingKey(ts, deviceID), payload)
	})
	if err != nil {
		return datatypes.Reading{}, fmt.Errorf("append reading: %w", err)
	}
	return reading, nil
}

// History returns readings newest first. deviceID filters to one device
// when non-empty. offset skips that many matching readings before
// collecting limit results.
func (r *ReadingStore) History(ctx context.Context, deviceID string, limit, offset int) ([]datatypes.Reading, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var out []datatypes.Reading
	err := r.store.withView(ctx, func(txn *badger.Txn) error {
		prefix := []byte(readingPrefix)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		skipped := 0
		// Seek just past the prefix range so the reverse scan starts at
		// the most recent reading.
		for it.Seek(append(prefix, 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			var reading datatypes.Reading
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &reading)
			}); err != nil {
				return fmt.Errorf("decode reading %s: %w", it.Item().Key(), err)
			}
			if deviceID != "" && reading.DeviceID != deviceID {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			out = append(out, reading)
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

// RecentWindow returns the most recent readings for a device, newest
// first. It is the bounded window the analysis pipeline formats into a
// prompt.
func (r *ReadingStore) RecentWindow(ctx context.Context, deviceID string, limit int) ([]datatypes.Reading, error) {
	return r.History(ctx, deviceID, limit, 0)
}

// Statistics aggregates the last 24 hours of readings. TotalCount spans
// the entire log, matching the history endpoint's notion of size.
func (r *ReadingStore) Statistics(ctx context.Context) (datatypes.StatisticsResponse, error) {
	now := r.now().UTC()
	cutoff := now.Add(-24 * time.Hour)

	var (
		total    int
		count24  int
		sum24    float64
		max24    float64
		min24    float64
		byHour   = make(map[string]*datatypes.HourlyBreakdown)
		hourSums = make(map[string]float64)
	)

	err := r.store.withView(ctx, func(txn *badger.Txn) error {
		prefix := []byte(readingPrefix)
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			total++
			var reading datatypes.Reading
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &reading)
			}); err != nil {
				return fmt.Errorf("decode reading %s: %w", it.Item().Key(), err)
			}
			ts, err := time.Parse(time.RFC3339Nano, reading.Timestamp)
			if err != nil || ts.Before(cutoff) {
				continue
			}
			if count24 == 0 {
				max24 = reading.Value
				min24 = reading.Value
			} else {
				if reading.Value > max24 {
					max24 = reading.Value
				}
				if reading.Value < min24 {
					min24 = reading.Value
				}
			}
			count24++
			sum24 += reading.Value

			hour := ts.UTC().Format("15")
			row, ok := byHour[hour]
			if !ok {
				row = &datatypes.HourlyBreakdown{Hour: hour}
				byHour[hour] = row
			}
			row.Count++
			hourSums[hour] += reading.Value
		}
		return nil
	})
	if err != nil {
		return datatypes.StatisticsResponse{}, err
	}

	var avg24 float64
	if count24 > 0 {
		avg24 = sum24 / float64(count24)
	}
	// Efficiency is a placeholder metric until flow-vs-pressure data is
	// available from the field units.
	var efficiency float64
	if avg24 > 0 {
		efficiency = 95.0
	}

	perHour := make([]datatypes.HourlyBreakdown, 0, len(byHour))
	for hour, row := range byHour {
		row.AvgValue = round2(hourSums[hour] / float64(row.Count))
		perHour = append(perHour, *row)
	}
	sort.Slice(perHour, func(i, j int) bool { return perHour[i].Hour < perHour[j].Hour })

	return datatypes.StatisticsResponse{
		Average24h: round2(avg24),
		Max24h:     round2(max24),
		Min24h:     round2(min24),
		Efficiency: efficiency,
		PerHour:    perHour,
		TotalCount: total,
		ComputedAt: now.Format(time.RFC3339Nano),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
