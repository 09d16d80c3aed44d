package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const jobsBucketName = "jobs"

// ErrJobNotFound is returned when no job has the requested ID
var ErrJobNotFound = errors.New("job not found")

// DB defines the interface for job history operations
type DB interface {
	// SaveJob saves a job to the database
	SaveJob(job *Job) error

	// GetJob retrieves a job by ID
	GetJob(id string) (*Job, error)

	// ListJobs returns all jobs, newest first
	ListJobs() ([]*Job, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(jobsBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveJob saves a job to the database
func (b *BoltDB) SaveJob(job *Job) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucketName))
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshaling job: %w", err)
		}
		return bucket.Put([]byte(job.ID), data)
	})
}

// GetJob retrieves a job by ID
func (b *BoltDB) GetJob(id string) (*Job, error) {
	var job *Job
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucketName))
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListJobs returns all jobs, newest first
func (b *BoltDB) ListJobs() ([]*Job, error) {
	jobs := make([]*Job, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(jobsBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var job Job
			if err := json.Unmarshal(v, &job); err != nil {
				return fmt.Errorf("unmarshaling job: %w", err)
			}
			jobs = append(jobs, &job)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
