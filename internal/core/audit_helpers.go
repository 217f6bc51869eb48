package core

// Canonical audit operation kinds, used as AuditLogRecord.OperationKind.
const (
	AuditOpScan  = "scan"
	AuditOpClean = "clean"
)

// NewScanAuditRecord standardizes the shape of a scan-time audit record.
func NewScanAuditRecord(sessionID ItemID, item CleanableItem, verdict AuditVerdict) AuditLogRecord {
	return AuditLogRecord{
		SessionID:     sessionID,
		OperationKind: AuditOpScan,
		TargetPath:    item.Path,
		Detail: map[string]any{
			"category":        string(item.Category),
			"size_bytes":      item.SizeBytes,
			"mod_time":        item.ModTime,
			"score":           item.Score,
			"risk":            verdict.Risk.String(),
			"blocks_deletion": verdict.BlocksDeletion,
			"reason":          reasonKey(verdict.Reason),
		},
	}
}

// NewCleanAuditRecord standardizes the shape of a clean-time audit record.
func NewCleanAuditRecord(sessionID, transactionID ItemID, result ItemResult) AuditLogRecord {
	rec := AuditLogRecord{
		SessionID:     sessionID,
		TransactionID: transactionID,
		OperationKind: AuditOpClean,
		TargetPath:    result.Item.Path,
		Detail: map[string]any{
			"category":   string(result.Item.Category),
			"size_bytes": result.Item.SizeBytes,
			"score":      result.Item.Score,
			"outcome":    string(result.Outcome),
		},
	}
	if result.Err != nil {
		rec.Detail["error"] = result.Err.Error()
	}
	return rec
}

// reasonKey collapses reasons like "symlink_self:/path/to/file" -> "symlink_self"
func reasonKey(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i]
		}
	}
	return s
}
