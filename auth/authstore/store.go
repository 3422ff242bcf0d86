// Package authstore persists the two auth relations from spec §3 —
// one-shot challenge tokens and renewable session tokens — as bbolt
// buckets, grounded on cuemby-warren's pkg/storage/boltdb.go BoltStore
// (bucket-per-relation, json-per-key CRUD, ForEach for GC sweeps).
package authstore

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	challengesBucket = []byte("tokens")
	sessionsBucket   = []byte("session_tokens")
)

// Challenge is one row of the tokens relation.
type Challenge struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
	IP      string `json:"ip"`
}

// Session is one row of the session_tokens relation.
type Session struct {
	Token    string `json:"token"`
	Expires  int64  `json:"expires"`
	IP       string `json:"ip"`
	Username string `json:"username"`
}

// Store is the bbolt-backed auth_transient.db for one repository.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the auth relational store at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open auth store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(challengesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init auth store buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying bbolt handle.
func (s *Store) Close() error { return s.db.Close() }

// PutChallenge inserts or overwrites a challenge row.
func (s *Store) PutChallenge(c Challenge) error {
	return s.put(challengesBucket, c.Token, c)
}

// GetChallenge returns the challenge row for token, if present.
func (s *Store) GetChallenge(token string) (Challenge, bool, error) {
	var c Challenge
	ok, err := s.get(challengesBucket, token, &c)
	return c, ok, err
}

// DeleteChallenge removes the challenge row for token.
func (s *Store) DeleteChallenge(token string) error {
	return s.delete(challengesBucket, token)
}

// GCChallenges removes every challenge row with expires < now, mirroring
// BoltStore's ForEach-then-delete GC sweep.
func (s *Store) GCChallenges(now time.Time) error {
	return s.gc(challengesBucket, now, func(data []byte) (int64, error) {
		var c Challenge
		if err := json.Unmarshal(data, &c); err != nil {
			return 0, err
		}
		return c.Expires, nil
	})
}

// PutSession inserts or overwrites a session row.
func (s *Store) PutSession(sess Session) error {
	return s.put(sessionsBucket, sess.Token, sess)
}

// GetSession returns the session row for token, if present.
func (s *Store) GetSession(token string) (Session, bool, error) {
	var sess Session
	ok, err := s.get(sessionsBucket, token, &sess)
	return sess, ok, err
}

// DeleteSession removes the session row for token.
func (s *Store) DeleteSession(token string) error {
	return s.delete(sessionsBucket, token)
}

// RefreshSession updates the expiry of an existing session token.
func (s *Store) RefreshSession(token string, expires int64) error {
	sess, ok, err := s.GetSession(token)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("refresh session: no such token")
	}
	sess.Expires = expires
	return s.PutSession(sess)
}

// GCSessionsExcept removes every session row with expires < now, except
// the row for exceptToken (which may be mid-upload past its nominal
// expiry), per spec §4.5's have_authenticated_user GC rule.
func (s *Store) GCSessionsExcept(now time.Time, exceptToken string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			if string(k) == exceptToken {
				return nil
			}
			var sess Session
			if err := json.Unmarshal(v, &sess); err != nil {
				return nil // corrupt row; leave for manual inspection
			}
			if sess.Expires < now.Unix() {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) put(bucket []byte, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal auth row: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *Store) get(bucket []byte, key string, v interface{}) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, v)
	})
	return found, err
}

func (s *Store) delete(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

func (s *Store) gc(bucket []byte, now time.Time, expiryOf func([]byte) (int64, error)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			expires, err := expiryOf(v)
			if err != nil {
				return nil
			}
			if expires < now.Unix() {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
