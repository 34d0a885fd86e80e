package history

// Reconcile merges a batch of freshly fetched statuses into an ordered,
// newest-first history without losing unrelated records.
//
// For each non-nil update: if a record with the same ID exists it is replaced
// in place (its position never changes), otherwise the update is inserted at
// the head. Nil entries represent failed fetches and are skipped, preserving
// the prior value. Records already in a terminal status are never overwritten.
//
// Reconcile is pure and idempotent: applying the same batch twice is a no-op
// beyond the first application.
func Reconcile(current []SyncRecord, updates []*SyncRecord) []SyncRecord {
	merged := make([]SyncRecord, len(current))
	copy(merged, current)

	for _, update := range updates {
		if update == nil {
			continue
		}

		idx := indexOf(merged, update.ID)
		if idx < 0 {
			merged = append([]SyncRecord{*update}, merged...)
			continue
		}

		if merged[idx].Status.Terminal() {
			continue
		}

		merged[idx] = mergeRecord(merged[idx], *update)
	}

	return merged
}

// mergeRecord overlays a fetched update onto an existing record. Status and
// progress fields always come from the update; identity fields the status
// endpoint does not report are kept from the existing record.
func mergeRecord(existing, update SyncRecord) SyncRecord {
	out := existing

	out.Status = update.Status
	out.ItemsProcessed = update.ItemsProcessed
	out.ItemsNew = update.ItemsNew
	out.ErrorMessage = update.ErrorMessage

	if !update.StartedAt.IsZero() {
		out.StartedAt = update.StartedAt
	}
	if update.DisplayName != "" {
		out.DisplayName = update.DisplayName
	}
	if update.OriginKind != "" {
		out.OriginKind = update.OriginKind
	}
	if update.Kind != KindUnknown {
		out.Kind = update.Kind
	}
	if update.Trigger != TriggerUnknown {
		out.Trigger = update.Trigger
	}

	return out
}

func indexOf(records []SyncRecord, id string) int {
	for i := range records {
		if records[i].ID == id {
			return i
		}
	}
	return -1
}
