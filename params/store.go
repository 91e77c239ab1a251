// Package params persists the gripper tuning parameters in the device database.
package params

import (
	"sort"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const Bucket = "params"

// Param is a single stored tuning value, keyed by its full name
// (e.g. "left_gripper_moving_force").
type Param struct {
	Key     string `storm:"id"`
	Value   float64
	Updated time.Time
}

// StormStore reads and writes parameters in their own bucket of a storm database.
// It satisfies gripper.ParamReader.
type StormStore struct {
	node storm.Node
}

func NewStormStore(db storm.Node) (*StormStore, error) {
	node := db.From(Bucket)
	if err := node.Init(&Param{}); err != nil {
		return nil, errors.Wrap(err, "initialising params bucket")
	}
	return &StormStore{node: node}, nil
}

func (s *StormStore) Float(key string) (float64, bool, error) {
	var p Param
	if err := s.node.One("Key", key, &p); err != nil {
		if err == storm.ErrNotFound {
			return 0, false, nil
		}
		return 0, false, errors.Wrapf(err, "reading param %s", key)
	}
	return p.Value, true, nil
}

func (s *StormStore) Set(key string, value float64) error {
	p := &Param{Key: key, Value: value, Updated: time.Now().UTC()}
	if err := s.node.Save(p); err != nil {
		return errors.Wrapf(err, "writing param %s", key)
	}
	return nil
}

// SetMany writes every value in a single transaction.
func (s *StormStore) SetMany(values map[string]float64) error {
	tx, err := s.node.Begin(true)
	if err != nil {
		return errors.Wrap(err, "starting params transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for k, v := range values {
		if err := tx.Save(&Param{Key: k, Value: v, Updated: now}); err != nil {
			return errors.Wrapf(err, "writing param %s", k)
		}
	}
	return tx.Commit()
}

// Delete removes key. Deleting an absent key is not an error.
func (s *StormStore) Delete(key string) error {
	err := s.node.DeleteStruct(&Param{Key: key})
	if err != nil && err != storm.ErrNotFound {
		return errors.Wrapf(err, "deleting param %s", key)
	}
	return nil
}

// All returns every stored parameter.
func (s *StormStore) All() (map[string]float64, error) {
	var all []Param
	if err := s.node.All(&all); err != nil {
		return nil, errors.Wrap(err, "listing params")
	}

	out := make(map[string]float64, len(all))
	for _, p := range all {
		out[p.Key] = p.Value
	}
	return out, nil
}

// Subset returns the stored values for keys, skipping the absent ones.
func (s *StormStore) Subset(keys []string) (map[string]float64, error) {
	out := make(map[string]float64, len(keys))
	for _, k := range keys {
		v, ok, err := s.Float(k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[k] = v
		}
	}
	return out, nil
}

// Seed stores the values whose keys are not present yet, so that values tuned at
// runtime survive a restart. It returns the keys that were written.
func (s *StormStore) Seed(values map[string]float64) ([]string, error) {
	missing := make(map[string]float64)
	for k, v := range values {
		_, ok, err := s.Float(k)
		if err != nil {
			return nil, err
		}
		if !ok {
			missing[k] = v
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	if err := s.SetMany(missing); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(missing))
	for k := range missing {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	log.WithField("keys", keys).Info("seeded parameters")
	return keys, nil
}
