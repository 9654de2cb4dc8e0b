package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/palaver-chat/apiserver/internal/clock"
	"github.com/palaver-chat/apiserver/internal/storage"
	"github.com/palaver-chat/apiserver/types"
)

const (
	auditExportPrefix  = "audit"
	findingsPrefix     = "anomalies"
	contentTypeJSONL   = "application/x-ndjson"
	contentTypeJSON    = "application/json"
	exportKeyTimestamp = "20060102T150405Z"
)

// Exporter writes audit and anomaly snapshots to object storage.
type Exporter struct {
	storage *storage.Storage
	clock   clock.Clock
}

func NewExporter(s *storage.Storage, clk clock.Clock) *Exporter {
	if clk == nil {
		clk = clock.Real()
	}
	return &Exporter{storage: s, clock: clk}
}

// ExportAuditLog uploads entries as JSON lines and returns the object key.
func (e *Exporter) ExportAuditLog(ctx context.Context, entries []types.ModerationLogEntry) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return "", fmt.Errorf("encode audit entry %d: %w", entry.ID, err)
		}
	}
	key := e.key(auditExportPrefix, "jsonl")
	return key, e.put(ctx, key, buf.Bytes(), contentTypeJSONL)
}

// ArchiveFindings uploads a scan result and returns the object key.
func (e *Exporter) ArchiveFindings(ctx context.Context, findings []types.AnomalyFinding) (string, error) {
	if findings == nil {
		findings = []types.AnomalyFinding{}
	}
	data, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode findings: %w", err)
	}
	key := e.key(findingsPrefix, "json")
	return key, e.put(ctx, key, data, contentTypeJSON)
}

func (e *Exporter) key(prefix, ext string) string {
	return fmt.Sprintf("%s/%s.%s", prefix, e.clock.Now().UTC().Format(exportKeyTimestamp), ext)
}

func (e *Exporter) put(ctx context.Context, key string, data []byte, contentType string) error {
	if e.storage == nil {
		return errors.New("object storage is not configured")
	}
	if err := e.storage.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	if err := e.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
