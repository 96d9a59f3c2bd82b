package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/autopilot/pkg/metrics"
	"github.com/cuemby/autopilot/pkg/types"
)

var (
	// Bucket names
	bucketIncidents = []byte("incidents")
	bucketActions   = []byte("actions")
)

// BoltStore implements Store using BoltDB. Incidents are keyed by incident
// id, audit records by a generated uuid; values are JSON.
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// NewBoltStore creates a new BoltDB-backed store under dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "autopilot.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketIncidents, bucketActions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// CreateIncident persists a new incident record
func (s *BoltStore) CreateIncident(incident *types.Incident) error {
	if incident.ID == "" {
		return fmt.Errorf("incident id is required")
	}
	if incident.UpdatedAt.IsZero() {
		incident.UpdatedAt = s.now()
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIncidents)
		data, err := json.Marshal(incident)
		if err != nil {
			return err
		}
		return b.Put([]byte(incident.ID), data)
	})
	if err == nil {
		metrics.IncidentsByStatus.WithLabelValues(string(incident.Status)).Inc()
	}
	return err
}

// Transition moves an incident through the lifecycle DAG. The read,
// validation, and write happen in one transaction so a rejected transition
// leaves the stored record unchanged.
func (s *BoltStore) Transition(id string, to types.IncidentStatus, fields *TransitionFields) (*types.Incident, error) {
	var incident types.Incident
	var from types.IncidentStatus
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIncidents)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err := json.Unmarshal(data, &incident); err != nil {
			return err
		}

		if err := checkTransition(incident.Status, to); err != nil {
			return err
		}
		from = incident.Status

		now := s.now()
		incident.Status = to
		incident.UpdatedAt = now

		if to == types.IncidentRemediating && incident.RemediationStartedAt == nil {
			incident.RemediationStartedAt = &now
		}
		if to.Terminal() {
			incident.ResolvedAt = &now
			if to == types.IncidentResolved && !incident.DetectedAt.IsZero() {
				mttr := int64(now.Sub(incident.DetectedAt).Seconds())
				incident.MTTRSeconds = &mttr
			}
		}

		if fields != nil {
			if fields.Recommendation != nil {
				incident.Recommendation = fields.Recommendation
			}
			if fields.ActionResult != nil {
				incident.ActionResult = fields.ActionResult
			}
			if fields.ErrorMessage != "" {
				incident.ErrorMessage = fields.ErrorMessage
			}
		}

		updated, err := json.Marshal(&incident)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncidentsByStatus.WithLabelValues(string(from)).Dec()
	metrics.IncidentsByStatus.WithLabelValues(string(to)).Inc()
	return &incident, nil
}

// UpdateExplanation attaches a generated explanation to an incident
func (s *BoltStore) UpdateExplanation(id, explanation string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIncidents)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		var incident types.Incident
		if err := json.Unmarshal(data, &incident); err != nil {
			return err
		}
		incident.Explanation = explanation
		incident.UpdatedAt = s.now()
		updated, err := json.Marshal(&incident)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), updated)
	})
}

// RecordAction appends an audit record
func (s *BoltStore) RecordAction(audit *types.ActionAudit) error {
	if audit.ID == "" {
		audit.ID = uuid.New().String()
	}
	if audit.ExecutedAt.IsZero() {
		audit.ExecutedAt = s.now()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketActions)
		data, err := json.Marshal(audit)
		if err != nil {
			return err
		}
		return b.Put([]byte(audit.ID), data)
	})
}

// GetIncident fetches one incident by id
func (s *BoltStore) GetIncident(id string) (*types.Incident, error) {
	var incident types.Incident
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIncidents)
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &incident)
	})
	if err != nil {
		return nil, err
	}
	return &incident, nil
}

// ListIncidents returns incidents newest-first by detected_at
func (s *BoltStore) ListIncidents(limit int, status types.IncidentStatus) ([]*types.Incident, error) {
	var incidents []*types.Incident
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketIncidents)
		return b.ForEach(func(k, v []byte) error {
			var incident types.Incident
			if err := json.Unmarshal(v, &incident); err != nil {
				return err
			}
			if status != "" && incident.Status != status {
				return nil
			}
			incidents = append(incidents, &incident)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(incidents, func(i, j int) bool {
		return incidents[i].DetectedAt.After(incidents[j].DetectedAt)
	})
	if limit > 0 && len(incidents) > limit {
		incidents = incidents[:limit]
	}
	return incidents, nil
}

// ListActions returns the audit rows for one incident, oldest first
func (s *BoltStore) ListActions(incidentID string) ([]*types.ActionAudit, error) {
	var audits []*types.ActionAudit
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketActions)
		return b.ForEach(func(k, v []byte) error {
			var audit types.ActionAudit
			if err := json.Unmarshal(v, &audit); err != nil {
				return err
			}
			if audit.IncidentID == incidentID {
				audits = append(audits, &audit)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(audits, func(i, j int) bool {
		return audits[i].ExecutedAt.Before(audits[j].ExecutedAt)
	})
	return audits, nil
}
