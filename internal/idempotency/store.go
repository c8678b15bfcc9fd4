// Package idempotency stores the outcome of client requests that carry an
// Idempotency-Key header, so a retried request replays the first response
// instead of running again. Records live in a single bolt file and expire
// after a TTL.
package idempotency

import (
	"encoding/json"
	"errors"
	"time"

	bolt "github.com/boltdb/bolt"
)

const bucketName = "idempotency_keys"

// pendingTTL bounds how long a crashed request can hold a key.
const pendingTTL = time.Minute

var (
	ErrInProgress          = errors.New("request with this idempotency key is in progress")
	ErrFingerprintMismatch = errors.New("idempotency key reused with a different request")
)

type Record struct {
	Fingerprint string          `json:"fingerprint"`
	Status      int             `json:"status"` // 0 while pending
	Body        json.RawMessage `json:"body,omitempty"`
	ContentType string          `json:"content_type,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (r Record) Pending() bool { return r.Status == 0 }

type Store struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

func Open(path string, ttl time.Duration) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Begin claims key for a request with the given fingerprint. It returns
// started=true when the caller should run the request and later call
// Complete or Release. Otherwise the stored, completed record is returned
// for replay.
func (s *Store) Begin(key, fingerprint string) (rec Record, started bool, err error) {
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))

		if v := b.Get([]byte(key)); v != nil {
			var existing Record
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if s.live(existing) {
				if existing.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				if existing.Pending() {
					return ErrInProgress
				}
				rec = existing
				return nil
			}
		}

		rec = Record{Fingerprint: fingerprint, CreatedAt: s.now().UTC()}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		started = true
		return b.Put([]byte(key), data)
	})
	if err != nil {
		return Record{}, false, err
	}
	return rec, started, nil
}

// Complete stores the response for a key claimed by Begin.
func (s *Store) Complete(key string, status int, contentType string, body []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		rec.Status = status
		rec.ContentType = contentType
		if json.Valid(body) {
			rec.Body = append(json.RawMessage(nil), body...)
		} else {
			rec.Body = nil
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Release drops a pending claim so the client can retry.
func (s *Store) Release(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		var rec Record
		if err := json.Unmarshal(v, &rec); err != nil {
			return err
		}
		if !rec.Pending() {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Purge deletes expired records and reports how many went.
func (s *Store) Purge() (int, error) {
	n := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil || !s.live(rec) {
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
		n = len(stale)
		return nil
	})
	return n, err
}

func (s *Store) live(rec Record) bool {
	ttl := s.ttl
	if rec.Pending() {
		ttl = pendingTTL
	}
	return s.now().Sub(rec.CreatedAt) < ttl
}
