package session

import (
	"encoding/json"
	"errors"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/hupe1980/agency/core"
)

var bucketName = []byte("sessions")

// BoltStore persists sessions to a bbolt database file on disk. Each session
// is stored as one JSON document keyed by its ID.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) a bbolt database at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}

	// Ensure the bucket exists.
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Get loads a session.
func (b *BoltStore) Get(sessionID string) (*core.Session, error) {
	var sess *core.Session

	err := b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(sessionID))
		if raw == nil {
			return core.ErrSessionNotFound
		}

		s, err := decode(raw)
		if err != nil {
			return err
		}
		sess = s

		return nil
	})

	return sess, err
}

// AppendResult adds a result to the session, creating it if needed. The read
// and write happen in one transaction.
func (b *BoltStore) AppendResult(sessionID string, result core.FinalResult) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName)

		sess := core.NewSession(sessionID)
		if raw := bkt.Get([]byte(sessionID)); raw != nil {
			s, err := decode(raw)
			if err != nil {
				return err
			}
			sess = s
		}

		sess.AddResult(result)

		raw, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		return bkt.Put([]byte(sessionID), raw)
	})
}

// Delete removes a session.
func (b *BoltStore) Delete(sessionID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(bucketName)
		if bkt.Get([]byte(sessionID)) == nil {
			return core.ErrSessionNotFound
		}
		return bkt.Delete([]byte(sessionID))
	})
}

// List returns all session IDs in key order.
func (b *BoltStore) List() ([]string, error) {
	var ids []string

	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})

	return ids, err
}

// Close releases the database file.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func decode(raw []byte) (*core.Session, error) {
	var sess core.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, errors.Join(errors.New("decode session"), err)
	}
	if sess.Metadata == nil {
		sess.Metadata = map[string]string{}
	}
	return &sess, nil
}
