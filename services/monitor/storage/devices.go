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
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/aquaflow/services/monitor/datatypes"
)

const (
	deviceConfigPrefix = "devcfg:"
	deviceStatusPrefix = "devstat:"
)

// ErrDeviceNotFound is returned when a device has no stored config.
var ErrDeviceNotFound = errors.New("device not found")

// DeviceStore holds per-device configuration and liveness status.
type DeviceStore struct {
	store *Store
	now   func() time.Time
}

// NewDeviceStore returns a device store backed by s.
func NewDeviceStore(s *Store) *DeviceStore {
	return &DeviceStore{store: s, now: time.Now}
}

// GetConfig returns the stored configuration for a device, or
// ErrDeviceNotFound.
func (d *DeviceStore) GetConfig(ctx context.Context, deviceID string) (datatypes.DeviceConfig, error) {
	var cfg datatypes.DeviceConfig
	err := d.store.withView(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(deviceConfigPrefix + deviceID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrDeviceNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cfg)
		})
	})
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			return datatypes.DeviceConfig{}, err
		}
		return datatypes.DeviceConfig{}, fmt.Errorf("get device config %s: %w", deviceID, err)
	}
	return cfg, nil
}

// PutConfig upserts a device configuration.
func (d *DeviceStore) PutConfig(ctx context.Context, cfg datatypes.DeviceConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal device config: %w", err)
	}
	err = d.store.withUpdate(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(deviceConfigPrefix+cfg.DeviceID), payload)
	})
	if err != nil {
		return fmt.Errorf("put device config %s: %w", cfg.DeviceID, err)
	}
	return nil
}

// EnsureConfig returns the device's config, creating the default one on
// first contact. The created flag reports whether a default was written.
func (d *DeviceStore) EnsureConfig(ctx context.Context, deviceID string) (datatypes.DeviceConfig, bool, error) {
	cfg, err := d.GetConfig(ctx, deviceID)
	if err == nil {
		return cfg, false, nil
	}
	if !errors.Is(err, ErrDeviceNotFound) {
		return datatypes.DeviceConfig{}, false, err
	}
	cfg = datatypes.DefaultDeviceConfig(deviceID)
	if err := d.PutConfig(ctx, cfg); err != nil {
		return datatypes.DeviceConfig{}, false, err
	}
	return cfg, true, nil
}

// TouchStatus marks a device online and updates its last-seen time.
func (d *DeviceStore) TouchStatus(ctx context.Context, deviceID string) error {
	status := datatypes.DeviceStatus{
		DeviceID: deviceID,
		Online:   true,
		LastSeen: d.now().UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal device status: %w", err)
	}
	err = d.store.withUpdate(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(deviceStatusPrefix+deviceID), payload)
	})
	if err != nil {
		return fmt.Errorf("touch device status %s: %w", deviceID, err)
	}
	return nil
}

// ListStatuses returns the status of every known device.
func (d *DeviceStore) ListStatuses(ctx context.Context) ([]datatypes.DeviceStatus, error) {
	var out []datatypes.DeviceStatus
	err := d.store.withView(ctx, func(txn *badger.Txn) error {
		prefix := []byte(deviceStatusPrefix)
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var status datatypes.DeviceStatus
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &status)
			}); err != nil {
				return fmt.Errorf("decode device status %s: %w", it.Item().Key(), err)
			}
			out = append(out, status)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListConfiguredDevices returns the IDs of all devices with a stored
// config. The simulator uses this to generate one reading per device.
func (d *DeviceStore) ListConfiguredDevices(ctx context.Context) ([]string, error) {
	var out []string
	err := d.store.withView(ctx, func(txn *badger.Txn) error {
		prefix := []byte(deviceConfigPrefix)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			out = append(out, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
