package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/tangthinker/unibackup/internal/schedule"
)

const (
	keyMeta     = "unibackup/meta"
	keyTargets  = "unibackup/targets"
	keyLogs     = "unibackup/logs"
	keySchedule = "unibackup/schedule"
)

type meta struct {
	LoggedIn bool `json:"logged_in"`
	NextID   int  `json:"next_id"`
}

// BadgerBackend stores each section of Data under its own key.
type BadgerBackend struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger database in dir. An empty dir opens
// an in-memory database.
func OpenBadger(dir string) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerBackend{db: db}, nil
}

func (b *BadgerBackend) Load() (Data, bool, error) {
	var (
		data  Data
		m     meta
		found = true
	)

	err := b.db.View(func(txn *badger.Txn) error {
		if err := getJSON(txn, keyMeta, &m); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				found = false
				return nil
			}
			return err
		}
		sections := []struct {
			key string
			dst any
		}{
			{keyTargets, &data.Targets},
			{keyLogs, &data.Logs},
			{keySchedule, &data.Schedule},
		}
		for _, sec := range sections {
			if err := getJSON(txn, sec.key, sec.dst); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Data{}, false, err
	}
	if !found {
		return Data{}, false, nil
	}

	data.LoggedIn = m.LoggedIn
	data.NextID = m.NextID
	if data.Schedule == (schedule.Config{}) {
		data.Schedule = schedule.DefaultConfig()
	}
	return data, true, nil
}

func (b *BadgerBackend) Save(data Data) error {
	return b.db.Update(func(txn *badger.Txn) error {
		entries := map[string]any{
			keyMeta:     meta{LoggedIn: data.LoggedIn, NextID: data.NextID},
			keyTargets:  data.Targets,
			keyLogs:     data.Logs,
			keySchedule: data.Schedule,
		}
		for key, v := range entries {
			raw, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to marshal %s: %w", key, err)
			}
			if err := txn.Set([]byte(key), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

func getJSON(txn *badger.Txn, key string, dst any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}
