// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package serializer

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/iot-dsa/dslink-go/pkg/node"
)

// Watcher reloads a FileStore's document into a tree after the file was
// edited by someone else. Documents written by the FileStore itself are
// skipped.
type Watcher struct {
	store   *FileStore
	manager *node.Manager
	watcher *fsnotify.Watcher

	// onReload is informed after each reload, for tests.
	onReload func(error)

	stopSyn  chan struct{}
	stopAck  chan struct{}
	stopOnce sync.Once
}

// NewWatcher starts watching the FileStore's directory.
func NewWatcher(store *FileStore, manager *node.Manager) (*Watcher, error) {
	return newWatcher(store, manager, nil)
}

func newWatcher(store *FileStore, manager *node.Manager, onReload func(error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(store.Path())); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		store:    store,
		manager:  manager,
		watcher:  fsw,
		onReload: onReload,
		stopSyn:  make(chan struct{}),
		stopAck:  make(chan struct{}),
	}
	go w.handler()

	return w, nil
}

func (w *Watcher) handler() {
	defer close(w.stopAck)

	name := filepath.Clean(w.store.Path())

	for {
		select {
		case <-w.stopSyn:
			return

		case e, ok := <-w.watcher.Events:
			if !ok {
				log.Error("fsnotify's Event channel was closed")
				return
			}

			if filepath.Clean(e.Name) != name {
				continue
			}
			if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				log.WithFields(log.Fields{
					"file":      e.Name,
					"operation": e.Op.String(),
				}).Debug("Ignoring fsnotify event")
				continue
			}

			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				log.Error("fsnotify's Errors channel was closed")
				return
			}

			log.WithError(err).Warn("fsnotify errored")
		}
	}
}

func (w *Watcher) reload() {
	logger := log.WithField("file", w.store.Path())

	// Editors might truncate before writing; retry on an incomplete document.
	var err error
	for i := 0; i < 3; i++ {
		var data []byte
		if data, err = os.ReadFile(w.store.Path()); err != nil {
			break
		} else if w.store.Written(data) {
			logger.Debug("Skipping own nodes file write")
			return
		} else if err = Deserialize(w.manager, data); err == nil {
			logger.Info("Reloaded nodes file")
			break
		}

		time.Sleep(time.Duration(i+1) * 50 * time.Millisecond)
	}

	if err != nil {
		logger.WithError(err).Warn("Reloading nodes file errored")
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopSyn)
		<-w.stopAck
		err = w.watcher.Close()
	})
	return err
}
