package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "github.com/boltdb/bolt"
)

const bucketName = "seat_reconciliation"

// Entry is a pending reconciliation for one course. Scheduling the same course twice keeps
// a single entry.
type Entry struct {
	CourseID    string    `json:"course_id"`
	Reason      string    `json:"reason"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Requests    int       `json:"requests"`
}

// Journal persists pending reconciliations so they survive restarts.
type Journal struct {
	db *bolt.DB
}

// Open opens (or creates) the journal file at path.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init journal bucket: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close releases the file lock.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Put records a pending reconciliation. An existing entry keeps its original schedule
// time and counts the extra request. It reports whether the entry is new.
func (j *Journal) Put(courseID, reason string, at time.Time) (bool, error) {
	created := false
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		entry := Entry{CourseID: courseID, Reason: reason, ScheduledAt: at.UTC()}
		if raw := b.Get([]byte(courseID)); raw != nil {
			if err := json.Unmarshal(raw, &entry); err != nil {
				return err
			}
		} else {
			created = true
		}
		entry.Requests++
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return b.Put([]byte(courseID), data)
	})
	if err != nil {
		return false, fmt.Errorf("journal put %s: %w", courseID, err)
	}
	return created, nil
}

// Get returns the pending entry for a course.
func (j *Journal) Get(courseID string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)
	err := j.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bucketName)).Get([]byte(courseID))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &entry)
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("journal get %s: %w", courseID, err)
	}
	return entry, found, nil
}

// DeleteIf removes the entry only while it still matches seen, so a request journaled after
// seen was read is kept. It reports whether the entry was removed.
func (j *Journal) DeleteIf(seen Entry) (bool, error) {
	removed := false
	err := j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		raw := b.Get([]byte(seen.CourseID))
		if raw == nil {
			return nil
		}
		var current Entry
		if err := json.Unmarshal(raw, &current); err != nil {
			return err
		}
		if current.Requests != seen.Requests || !current.ScheduledAt.Equal(seen.ScheduledAt) {
			return nil
		}
		removed = true
		return b.Delete([]byte(seen.CourseID))
	})
	if err != nil {
		return false, fmt.Errorf("journal delete %s: %w", seen.CourseID, err)
	}
	return removed, nil
}

// List returns pending entries, oldest first.
func (j *Journal) List() ([]Entry, error) {
	entries := []Entry{}
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(_, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("journal list: %w", err)
	}
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].ScheduledAt.Before(entries[b].ScheduledAt)
	})
	return entries, nil
}
