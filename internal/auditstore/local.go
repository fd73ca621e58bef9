// Package auditstore implements contracts.AuditDriver: the command audit
// trail every control-plane dispatch is appended to (SPEC_FULL.md
// supplemented feature 4). Adapted from the teacher's retention archiver,
// which wrote expired traces/audit events as JSONL files the same way.
package auditstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ocppsim/simulator/pkg/contracts"
)

// LocalFileDriver appends one JSON line per command dispatch to a daily
// file under basePath, and keeps the most recent records resident for
// quick inspection (a bounded ring buffer).
type LocalFileDriver struct {
	basePath string
	log      zerolog.Logger

	mu   sync.Mutex
	ring []contracts.AuditRecord
	cap  int
}

// NewLocalFileDriver creates a file-based audit driver. If basePath is
// empty it defaults to "~/.ocppsim/audit".
func NewLocalFileDriver(basePath string, ringCapacity int, log zerolog.Logger) *LocalFileDriver {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			basePath = "/tmp/ocppsim/audit"
		} else {
			basePath = filepath.Join(home, ".ocppsim", "audit")
		}
	}
	if ringCapacity <= 0 {
		ringCapacity = 1000
	}
	return &LocalFileDriver{basePath: basePath, log: log, cap: ringCapacity}
}

func (d *LocalFileDriver) Kind() string { return "local" }

// RecordCommand appends the record to today's JSONL file and the in-memory
// ring buffer.
func (d *LocalFileDriver) RecordCommand(_ context.Context, record contracts.AuditRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if err := os.MkdirAll(d.basePath, 0o755); err != nil {
		return fmt.Errorf("create audit dir: %w", err)
	}
	filename := time.Now().UTC().Format("2006-01-02") + ".jsonl"
	f, err := os.OpenFile(filepath.Join(d.basePath, filename), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(record); err != nil {
		return fmt.Errorf("encode audit record: %w", err)
	}

	d.mu.Lock()
	d.ring = append(d.ring, record)
	if len(d.ring) > d.cap {
		d.ring = d.ring[len(d.ring)-d.cap:]
	}
	d.mu.Unlock()

	d.log.Debug().Str("procedure", record.Procedure).Int("hashIds", len(record.HashIDs)).Msg("command audit record written")
	return nil
}

// Recent returns up to n of the most recently recorded commands, most
// recent first.
func (d *LocalFileDriver) Recent(n int) []contracts.AuditRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= 0 || n > len(d.ring) {
		n = len(d.ring)
	}
	out := make([]contracts.AuditRecord, n)
	for i := 0; i < n; i++ {
		out[i] = d.ring[len(d.ring)-1-i]
	}
	return out
}

func (d *LocalFileDriver) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(d.basePath, 0o755); err != nil {
		return fmt.Errorf("audit path not writable: %w", err)
	}
	testFile := filepath.Join(d.basePath, ".healthcheck")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("audit path not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}
