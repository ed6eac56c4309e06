// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package serializer

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

// BackupSuffix is appended to the nodes file's name for its compressed backup.
const BackupSuffix = ".bak.xz"

// FileStore persists documents in one file. Before each write, the previous
// version is kept as an xz compressed backup.
type FileStore struct {
	path string

	mutex sync.Mutex
	last  [sha256.Size]byte
}

// NewFileStore for a file path, e.g., "nodes.json".
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path of the nodes file.
func (fs *FileStore) Path() string {
	return fs.path
}

// BackupPath of the compressed previous version.
func (fs *FileStore) BackupPath() string {
	return fs.path + BackupSuffix
}

// Save a document. The file is replaced atomically.
func (fs *FileStore) Save(data []byte) error {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	if dir := filepath.Dir(fs.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	if err := fs.backup(); err != nil {
		log.WithField("file", fs.path).WithError(err).Warn("Creating backup errored")
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), filepath.Base(fs.path)+".tmp*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	} else if err := tmp.Close(); err != nil {
		return err
	} else if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return err
	}

	fs.last = sha256.Sum256(data)
	return nil
}

// backup compresses the current file, if any.
func (fs *FileStore) backup() error {
	data, err := os.ReadFile(fs.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	var buf bytes.Buffer
	if xzW, xzErr := xz.NewWriter(&buf); xzErr != nil {
		return xzErr
	} else if _, err := xzW.Write(data); err != nil {
		return err
	} else if err := xzW.Close(); err != nil {
		return err
	}

	return os.WriteFile(fs.BackupPath(), buf.Bytes(), 0o644)
}

// Load the document, falling back to the backup if the file is missing or
// empty. os.ErrNotExist is returned if neither exists.
func (fs *FileStore) Load() ([]byte, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()

	data, err := os.ReadFile(fs.path)
	if err == nil && len(bytes.TrimSpace(data)) > 0 {
		fs.last = sha256.Sum256(data)
		return data, nil
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err = fs.loadBackup()
	if err != nil {
		return nil, err
	}

	log.WithField("file", fs.BackupPath()).Info("Restored nodes from backup")
	return data, nil
}

func (fs *FileStore) loadBackup() ([]byte, error) {
	f, err := os.Open(fs.BackupPath())
	if err != nil {
		return nil, err
	}
	defer f.Close()

	xzR, xzErr := xz.NewReader(f)
	if xzErr != nil {
		return nil, fmt.Errorf("reading backup failed: %w", xzErr)
	}
	return io.ReadAll(xzR)
}

// Written checks if a document is the one last saved or loaded by this FileStore.
func (fs *FileStore) Written(data []byte) bool {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	return fs.last == sha256.Sum256(data)
}
