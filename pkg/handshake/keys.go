// SPDX-FileCopyrightText: 2026 The dslink-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package handshake

import (
	"bytes"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dtn7/cboring"
	log "github.com/sirupsen/logrus"
)

// LocalKeys is a link's P-256 key pair.
type LocalKeys struct {
	private *ecdh.PrivateKey
}

// GenerateKeys creates a new random key pair.
func GenerateKeys() (*LocalKeys, error) {
	private, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &LocalKeys{private: private}, nil
}

// NewLocalKeys from a private key's raw scalar.
func NewLocalKeys(scalar []byte) (*LocalKeys, error) {
	private, err := ecdh.P256().NewPrivateKey(scalar)
	if err != nil {
		return nil, err
	}
	return &LocalKeys{private: private}, nil
}

// PublicKey in its uncompressed encoding.
func (keys *LocalKeys) PublicKey() []byte {
	return keys.private.PublicKey().Bytes()
}

// EncodedPublicKey is the base64url encoded PublicKey, as sent to the broker.
func (keys *LocalKeys) EncodedPublicKey() string {
	return base64.RawURLEncoding.EncodeToString(keys.PublicKey())
}

// EncodedHashPublicKey is the base64url encoded SHA-256 hash of the PublicKey.
func (keys *LocalKeys) EncodedHashPublicKey() string {
	hash := sha256.Sum256(keys.PublicKey())
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// DsID appends the public key's hash to a link name.
func (keys *LocalKeys) DsID(stem string) string {
	return stem + "-" + keys.EncodedHashPublicKey()
}

// SharedSecret derives the ECDH secret with a base64url encoded public key.
func (keys *LocalKeys) SharedSecret(encodedKey string) ([]byte, error) {
	raw, err := decodeBase64(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decoding key: %w", err)
	}

	remote, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return nil, err
	}
	return keys.private.ECDH(remote)
}

// Serialize to the textual representation "<private> <public>", each base64url encoded.
func (keys *LocalKeys) Serialize() string {
	return base64.RawURLEncoding.EncodeToString(keys.private.Bytes()) + " " + keys.EncodedPublicKey()
}

// DeserializeKeys parses the result of Serialize.
func DeserializeKeys(s string) (*LocalKeys, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return nil, fmt.Errorf("serialized keys have %d fields instead of 2", len(fields))
	}

	scalar, err := decodeBase64(fields[0])
	if err != nil {
		return nil, err
	}
	keys, err := NewLocalKeys(scalar)
	if err != nil {
		return nil, err
	}

	if public, err := decodeBase64(fields[1]); err != nil {
		return nil, err
	} else if !bytes.Equal(public, keys.PublicKey()) {
		return nil, errors.New("public key does not match private key")
	}
	return keys, nil
}

// MarshalCbor writes the key pair as an array of the private scalar and the
// public key.
func (keys *LocalKeys) MarshalCbor(w io.Writer) error {
	if err := cboring.WriteArrayLength(2, w); err != nil {
		return err
	}
	if err := cboring.WriteByteString(keys.private.Bytes(), w); err != nil {
		return err
	}
	return cboring.WriteByteString(keys.PublicKey(), w)
}

// UnmarshalCbor reads a key pair written by MarshalCbor.
func (keys *LocalKeys) UnmarshalCbor(r io.Reader) error {
	if l, err := cboring.ReadArrayLength(r); err != nil {
		return err
	} else if l != 2 {
		return fmt.Errorf("wrong array length: %d instead of 2", l)
	}

	scalar, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}
	public, err := cboring.ReadByteString(r)
	if err != nil {
		return err
	}

	private, err := ecdh.P256().NewPrivateKey(scalar)
	if err != nil {
		return err
	} else if !bytes.Equal(public, private.PublicKey().Bytes()) {
		return errors.New("public key does not match private key")
	}

	keys.private = private
	return nil
}

// LoadKeys reads a CBOR key file.
func LoadKeys(path string) (*LocalKeys, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	keys := &LocalKeys{}
	if err := cboring.Unmarshal(keys, f); err != nil {
		return nil, fmt.Errorf("reading key file %s: %w", path, err)
	}
	return keys, nil
}

// Save the keys as a CBOR key file, readable only by its owner.
func (keys *LocalKeys) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}

	buff := new(bytes.Buffer)
	if err := cboring.Marshal(keys, buff); err != nil {
		return err
	}
	return os.WriteFile(path, buff.Bytes(), 0o600)
}

// LoadOrGenerateKeys reads the key file, or generates and saves new keys if
// it does not exist.
func LoadOrGenerateKeys(path string) (*LocalKeys, error) {
	keys, err := LoadKeys(path)
	if err == nil {
		return keys, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if keys, err = GenerateKeys(); err != nil {
		return nil, err
	}
	if err = keys.Save(path); err != nil {
		return nil, err
	}

	log.WithField("file", path).Info("Generated new keys")
	return keys, nil
}

// decodeBase64 accepts base64url with or without padding.
func decodeBase64(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
