// Package audit implements the append-only exchange log. One JSONL file
// per feature id; appends are O_APPEND-safe from multiple writers and a
// record is durable before the caller's response returns.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/specforge/specforge/internal/core"
	"github.com/specforge/specforge/internal/logging"
)

// Sink writes audit records to per-feature JSONL partitions under a base
// directory.
type Sink struct {
	baseDir string
	logger  *logging.Logger

	mu sync.Mutex // serializes appends within this process
}

// NewSink creates a sink rooted at baseDir, creating it if needed.
func NewSink(baseDir string, logger *logging.Logger) (*Sink, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	return &Sink{baseDir: baseDir, logger: logger}, nil
}

func (s *Sink) partitionPath(featureID string) string {
	return filepath.Join(s.baseDir, featureID+".jsonl")
}

// Append writes a record to its feature partition. If ParentID is set it
// must reference an earlier record in the same partition.
func (s *Sink) Append(ctx context.Context, rec *core.AuditRecord) error {
	if rec == nil {
		return core.ErrValidation("INVALID_AUDIT_RECORD", "nil audit record")
	}
	if !core.ValidFeatureID(rec.FeatureID) {
		return core.ErrValidation("INVALID_AUDIT_RECORD",
			fmt.Sprintf("malformed feature id %q", rec.FeatureID))
	}
	if rec.DurationMS < 0 {
		return core.ErrValidation("INVALID_AUDIT_RECORD", "negative duration")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ParentID != "" {
		found, err := s.contains(rec.FeatureID, rec.ParentID)
		if err != nil {
			return err
		}
		if !found {
			return core.ErrValidation("INVALID_AUDIT_RECORD",
				fmt.Sprintf("parent_id %s not found in partition %s", rec.ParentID, rec.FeatureID))
		}
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(s.partitionPath(rec.FeatureID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return fmt.Errorf("opening audit partition: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing audit partition: %w", err)
	}

	s.logger.Debug("audit record appended",
		"feature_id", rec.FeatureID, "record_id", rec.ID, "status", string(rec.Status))
	_ = ctx
	return nil
}

// List returns the partition for a feature in insertion order. A missing
// partition is an empty list, not an error.
func (s *Sink) List(_ context.Context, featureID string) ([]*core.AuditRecord, error) {
	f, err := os.Open(s.partitionPath(featureID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening audit partition: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []*core.AuditRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec core.AuditRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, core.ErrState(core.CodePersistenceCorrupted,
				fmt.Sprintf("audit partition %s line %d is not valid JSON", featureID, lineNo)).WithCause(err)
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading audit partition: %w", err)
	}
	return records, nil
}

// Chain walks parent_id links backwards from recordID and returns the chain
// in chronological order, root first.
func (s *Sink) Chain(ctx context.Context, featureID, recordID string) ([]*core.AuditRecord, error) {
	records, err := s.List(ctx, featureID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*core.AuditRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	cur, ok := byID[recordID]
	if !ok {
		return nil, core.ErrNotFound("AUDIT_RECORD_NOT_FOUND",
			fmt.Sprintf("record %s not in partition %s", recordID, featureID))
	}

	var chain []*core.AuditRecord
	seen := map[string]bool{}
	for cur != nil {
		if seen[cur.ID] {
			return nil, core.ErrState(core.CodePersistenceCorrupted,
				fmt.Sprintf("parent_id cycle at record %s", cur.ID))
		}
		seen[cur.ID] = true
		chain = append([]*core.AuditRecord{cur}, chain...)
		if cur.ParentID == "" {
			break
		}
		cur = byID[cur.ParentID]
	}
	return chain, nil
}

func (s *Sink) contains(featureID, recordID string) (bool, error) {
	records, err := s.List(context.Background(), featureID)
	if err != nil {
		return false, err
	}
	for _, rec := range records {
		if rec.ID == recordID {
			return true, nil
		}
	}
	return false, nil
}

var _ core.AuditLog = (*Sink)(nil)
