package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/cuemby/brokerfleet/pkg/types"
	bolt "go.etcd.io/bbolt"
)

const dbFile = "brokerfleet.db"

var (
	bucketTaskInfos    = []byte("task_infos")
	bucketTaskStatuses = []byte("task_statuses")
	bucketConfig       = []byte("config")
)

// BoltStore keeps one task info and one task status per broker slot,
// keyed by broker id, plus string config values
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates brokerfleet.db under dataDir. It fails after
// a second if another process holds the file lock.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	db, err := bolt.Open(filepath.Join(dataDir, dbFile), 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTaskInfos, bucketTaskStatuses, bucketConfig} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func slotKey(brokerID int) []byte {
	return []byte(strconv.Itoa(brokerID))
}

// getJSON decodes the value at key, returning nil when it is absent
func getJSON[T any](b *bolt.Bucket, key []byte) (*T, error) {
	data := b.Get(key)
	if data == nil {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("failed to decode key %s: %w", key, err)
	}
	return v, nil
}

func putJSON(b *bolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func listJSON[T any](b *bolt.Bucket) ([]*T, error) {
	var out []*T
	err := b.ForEach(func(k, _ []byte) error {
		v, err := getJSON[T](b, k)
		if err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// SaveTaskInfo records info as the task occupying its broker slot, replacing
// any earlier task
func (s *BoltStore) SaveTaskInfo(info *types.TaskInfo) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketTaskInfos), slotKey(info.BrokerID), info)
	})
}

// TaskInfoForBroker returns nil, nil for an empty slot
func (s *BoltStore) TaskInfoForBroker(brokerID int) (*types.TaskInfo, error) {
	var info *types.TaskInfo
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		info, err = getJSON[types.TaskInfo](tx.Bucket(bucketTaskInfos), slotKey(brokerID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read task info for broker %d: %w", brokerID, err)
	}
	return info, nil
}

// ListTaskInfos returns every recorded task ordered by broker id
func (s *BoltStore) ListTaskInfos() ([]*types.TaskInfo, error) {
	var infos []*types.TaskInfo
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		infos, err = listJSON[types.TaskInfo](tx.Bucket(bucketTaskInfos))
		return err
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(infos, func(a, b *types.TaskInfo) int { return a.BrokerID - b.BrokerID })
	return infos, nil
}

// SaveTaskStatus records status against the broker named in its task id.
// A status for a task other than the slot's recorded task returns ErrStaleStatus.
func (s *BoltStore) SaveTaskStatus(status *types.TaskStatus) error {
	brokerID, err := types.BrokerIDFromTaskID(status.TaskID)
	if err != nil {
		return err
	}
	key := slotKey(brokerID)

	return s.db.Update(func(tx *bolt.Tx) error {
		current, err := getJSON[types.TaskInfo](tx.Bucket(bucketTaskInfos), key)
		if err != nil {
			return err
		}
		if current != nil && current.ID != status.TaskID {
			return fmt.Errorf("%w: %s (slot holds %s)", ErrStaleStatus, status.TaskID, current.ID)
		}
		return putJSON(tx.Bucket(bucketTaskStatuses), key, status)
	})
}

// TaskStatusForBroker returns nil, nil when no status was recorded
func (s *BoltStore) TaskStatusForBroker(brokerID int) (*types.TaskStatus, error) {
	var status *types.TaskStatus
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		status, err = getJSON[types.TaskStatus](tx.Bucket(bucketTaskStatuses), slotKey(brokerID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read task status for broker %d: %w", brokerID, err)
	}
	return status, nil
}

func (s *BoltStore) ListTaskStatuses() ([]*types.TaskStatus, error) {
	var statuses []*types.TaskStatus
	err := s.db.View(func(tx *bolt.Tx) (err error) {
		statuses, err = listJSON[types.TaskStatus](tx.Bucket(bucketTaskStatuses))
		return err
	})
	return statuses, err
}

// DeleteBroker forgets the task and status recorded for a broker slot
func (s *BoltStore) DeleteBroker(brokerID int) error {
	key := slotKey(brokerID)
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketTaskInfos, bucketTaskStatuses} {
			if err := tx.Bucket(name).Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) PutConfig(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfig).Put([]byte(key), []byte(value))
	})
}

// GetConfig returns ErrNotFound for a key never written
func (s *BoltStore) GetConfig(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketConfig).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("config %s: %w", key, ErrNotFound)
		}
		value = string(data)
		return nil
	})
	return value, err
}
