package store

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryDSN selects the in-process store
const MemoryDSN = "memory://"

// MemoryStore keeps rows in a map. It backs local runs and tests.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]*Submission
	now  func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*Submission), now: time.Now}
}

// InsertSubmissionBatch inserts all rows or none
func (m *MemoryStore) InsertSubmissionBatch(_ context.Context, subs []*Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range subs {
		if _, ok := m.rows[sub.RequestID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicate, sub.RequestID)
		}
	}
	for _, sub := range subs {
		row := &Submission{
			RequestID:         sub.RequestID,
			ImageHash:         sub.ImageHash,
			Status:            StatusReceived,
			ReceivedTimestamp: sub.ReceivedTimestamp,
			UpdatedAt:         m.now(),
		}
		m.rows[sub.RequestID] = row
	}
	return nil
}

// GetSubmission returns a copy of the row
func (m *MemoryStore) GetSubmission(_ context.Context, requestID string) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.get(requestID)
	if err != nil {
		return nil, err
	}
	cp := *row
	return &cp, nil
}

// MarkProcessing follows the PostgresStore semantics
func (m *MemoryStore) MarkProcessing(_ context.Context, requestID string, maxRetries int) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.get(requestID)
	if err != nil {
		return nil, err
	}
	if !row.Status.Final() {
		if row.RetryCount >= maxRetries {
			row.Status = StatusFailed
			row.ErrorMessage = MaxRetriesMessage
		} else {
			row.Status = StatusProcessing
		}
		row.UpdatedAt = m.now()
	}
	cp := *row
	return &cp, nil
}

// UpdateProgress merges progress into a PROCESSING row
func (m *MemoryStore) UpdateProgress(_ context.Context, requestID string, p Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.get(requestID)
	if err != nil {
		return err
	}
	if row.Status != StatusProcessing {
		return fmt.Errorf("%w: %s is %s", ErrNotFound, requestID, row.Status)
	}
	m.merge(row, p)
	return nil
}

// MarkForRetry returns the row to RECEIVED with one more retry counted
func (m *MemoryStore) MarkForRetry(_ context.Context, requestID string, errMsg string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.get(requestID)
	if err != nil {
		return 0, err
	}
	row.Status = StatusReceived
	row.RetryCount++
	row.ErrorMessage = errMsg
	row.UpdatedAt = m.now()
	return row.RetryCount, nil
}

// MarkCompleted finalises the row
func (m *MemoryStore) MarkCompleted(_ context.Context, requestID string, p Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.get(requestID)
	if err != nil {
		return err
	}
	m.merge(row, p)
	row.Status = StatusCompleted
	row.ErrorMessage = ""
	return nil
}

// MarkFailed finalises the row with an error
func (m *MemoryStore) MarkFailed(_ context.Context, requestID string, p Progress, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, err := m.get(requestID)
	if err != nil {
		return err
	}
	m.merge(row, p)
	row.Status = StatusFailed
	row.ErrorMessage = errMsg
	return nil
}

// Close is a no-op
func (m *MemoryStore) Close() {}

func (m *MemoryStore) get(requestID string) (*Submission, error) {
	row, ok := m.rows[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, requestID)
	}
	return row, nil
}

func (m *MemoryStore) merge(row *Submission, p Progress) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&row.Stage, p.Stage)
	set(&row.ImageID, p.ImageID)
	set(&row.MintTxHash, p.MintTxHash)
	set(&row.TokenID, p.TokenID)
	set(&row.TokenContract, p.TokenContract)
	set(&row.RegisterTxHash, p.RegisterTxHash)
	set(&row.RegisteredAddress, p.RegisteredAddress)
	set(&row.MintTxURL, p.MintTxURL)
	set(&row.RegisterTxURL, p.RegisterTxURL)
	set(&row.Note, p.Note)
	if p.ChainID != nil {
		v := *p.ChainID
		row.ChainID = &v
	}
	row.UpdatedAt = m.now()
}

var _ Store = (*MemoryStore)(nil)
