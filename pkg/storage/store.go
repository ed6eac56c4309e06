// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold"
)

const dirBadger string = "db"

// DefaultKeep is the number of snapshots left by Prune if nothing else was configured.
const DefaultKeep = 16

// ErrNoSnapshot is returned by Latest for an empty Store.
var ErrNoSnapshot = fmt.Errorf("no snapshot stored: %w", os.ErrNotExist)

// Store keeps serialized node trees as versioned snapshots.
type Store struct {
	bh *badgerhold.Store

	badgerDir string
	keep      int
}

// NewStore creates a new Store or opens an existing Store from the given path.
// After each Push, only the keep newest snapshots are retained; zero disables pruning.
func NewStore(dir string, keep int) (s *Store, err error) {
	badgerDir := path.Join(dir, dirBadger)

	opts := badgerhold.DefaultOptions
	opts.Dir = badgerDir
	opts.ValueDir = badgerDir
	opts.Logger = log.StandardLogger()
	opts.Options.ValueLogFileSize = 1<<26 - 1

	if dirErr := os.MkdirAll(badgerDir, 0700); dirErr != nil {
		err = dirErr
		return
	}

	if bh, bhErr := badgerhold.Open(opts); bhErr != nil {
		err = bhErr
	} else {
		s = &Store{
			bh: bh,

			badgerDir: badgerDir,
			keep:      keep,
		}
	}
	return
}

// Close the Store. It must not be used afterwards.
func (s *Store) Close() error {
	return s.bh.Close()
}

// Push a serialized tree. A document equal to the latest snapshot is not stored twice.
func (s *Store) Push(data []byte) error {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	if latest, err := s.latest(); err == nil && latest.Digest == digest {
		log.WithField("snapshot", latest.Id).Debug("Snapshot is unchanged, ignoring push")
		return nil
	}

	snap := Snapshot{
		Id:      ulid.Make().String(),
		Created: time.Now(),
		Digest:  digest,
		Data:    append([]byte(nil), data...),
	}

	log.WithFields(log.Fields{
		"snapshot": snap.Id,
		"size":     len(data),
	}).Debug("Store inserts Snapshot")

	if err := s.bh.Insert(snap.Id, snap); err != nil {
		return err
	}

	if s.keep > 0 {
		if _, err := s.Prune(s.keep); err != nil {
			log.WithError(err).Warn("Failed to prune Snapshots")
		}
	}
	return nil
}

// Latest returns the newest snapshot's document or ErrNoSnapshot.
func (s *Store) Latest() ([]byte, error) {
	snap, err := s.latest()
	if err != nil {
		return nil, err
	}
	return snap.Data, nil
}

func (s *Store) latest() (snap Snapshot, err error) {
	snaps, err := s.All()
	if err != nil {
		return
	} else if len(snaps) == 0 {
		err = ErrNoSnapshot
		return
	}
	return snaps[0], nil
}

// All snapshots, newest first.
func (s *Store) All() (snaps []Snapshot, err error) {
	if err = s.bh.Find(&snaps, badgerhold.Where("Created").Ge(time.Time{})); err != nil {
		return
	}

	// ULIDs sort by their creation time.
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Id > snaps[j].Id
	})
	return
}

// Get a snapshot by its id.
func (s *Store) Get(id string) (snap Snapshot, err error) {
	err = s.bh.Get(id, &snap)
	return
}

// Prune deletes all but the keep newest snapshots and returns the number of
// deleted snapshots.
func (s *Store) Prune(keep int) (int, error) {
	snaps, err := s.All()
	if err != nil || len(snaps) <= keep {
		return 0, err
	}

	deleted := 0
	for _, snap := range snaps[keep:] {
		if err := s.bh.Delete(snap.Id, Snapshot{}); err != nil {
			log.WithField("snapshot", snap.Id).WithError(err).Warn("Failed to delete Snapshot")
			continue
		}
		deleted++
	}

	log.WithFields(log.Fields{
		"deleted": deleted,
		"kept":    keep,
	}).Debug("Pruned Snapshots")
	return deleted, nil
}

// DeleteOlder removes all snapshots created before the given time.
func (s *Store) DeleteOlder(before time.Time) {
	var snaps []Snapshot
	if err := s.bh.Find(&snaps, badgerhold.Where("Created").Lt(before)); err != nil {
		log.WithError(err).Warn("Failed to get old Snapshots")
		return
	}

	for _, snap := range snaps {
		logger := log.WithField("snapshot", snap.Id)
		if err := s.bh.Delete(snap.Id, Snapshot{}); err != nil {
			logger.WithError(err).Warn("Failed to delete old Snapshot")
		} else {
			logger.Info("Deleted old Snapshot")
		}
	}
}
