// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package serializer

import (
	"errors"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/node"
)

// SaveInterval between checks for a changed tree.
const SaveInterval = 5 * time.Second

const jobName = "serializer"

// Snapshots keeps older versions of a document besides the nodes file.
type Snapshots interface {
	Push(data []byte) error
	Latest() ([]byte, error)
}

// Cron executes the periodic save.
type Cron interface {
	Register(name string, task func(), interval time.Duration) error
	Unregister(name string)
}

// Manager restores a tree on startup and saves it whenever it has changed.
type Manager struct {
	tree      *node.Manager
	store     *FileStore
	snapshots Snapshots

	mutex sync.Mutex
	cron  Cron
}

// NewManager for a tree persisted in a FileStore. snapshots might be nil.
func NewManager(tree *node.Manager, store *FileStore, snapshots Snapshots) *Manager {
	return &Manager{
		tree:      tree,
		store:     store,
		snapshots: snapshots,
	}
}

// Store of the nodes file.
func (m *Manager) Store() *FileStore {
	return m.store
}

// Restore the tree from the nodes file, its backup or the latest snapshot.
// A missing document is no error.
func (m *Manager) Restore() error {
	data, err := m.store.Load()
	if errors.Is(err, os.ErrNotExist) && m.snapshots != nil {
		data, err = m.snapshots.Latest()
		if err == nil {
			log.Info("Restored nodes from latest snapshot")
		}
	}

	if errors.Is(err, os.ErrNotExist) {
		log.WithField("file", m.store.Path()).Info("No nodes file to restore")
		return nil
	} else if err != nil {
		return err
	}

	if err := Deserialize(m.tree, data); err != nil {
		return err
	}

	// Restoring is no change worth saving.
	m.tree.TakeChanged()
	return nil
}

// Save the tree now.
func (m *Manager) Save() error {
	data, err := Serialize(m.tree)
	if err != nil {
		return err
	}

	if err := m.store.Save(data); err != nil {
		return err
	}

	if m.snapshots != nil {
		if err := m.snapshots.Push(data); err != nil {
			log.WithError(err).Warn("Storing snapshot errored")
		}
	}

	log.WithField("file", m.store.Path()).Debug("Saved nodes")
	return nil
}

// SaveIfChanged saves the tree if it was modified since the last save.
func (m *Manager) SaveIfChanged() {
	if !m.tree.TakeChanged() {
		return
	}

	if err := m.Save(); err != nil {
		log.WithError(err).Warn("Saving nodes errored")
	}
}

// Start saving changes every SaveInterval.
func (m *Manager) Start(cron Cron) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if err := cron.Register(jobName, m.SaveIfChanged, SaveInterval); err != nil {
		return err
	}
	m.cron = cron
	return nil
}

// Stop the periodic save and save pending changes.
func (m *Manager) Stop() error {
	m.mutex.Lock()
	if m.cron != nil {
		m.cron.Unregister(jobName)
		m.cron = nil
	}
	m.mutex.Unlock()

	if m.tree.TakeChanged() {
		return m.Save()
	}
	return nil
}
