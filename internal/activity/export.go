package activity

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
	"time"
)

// ExportTimeline renders the filtered timeline as CSV.
func (s *Service) ExportTimeline(ctx context.Context, filters TimelineFilters) ([]byte, error) {
	entries, err := s.Export(ctx, filters)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"occurred_at", "actor_id", "action", "entity_kind", "entity_id", "description"}); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		row := []string{
			entry.At.Format(time.RFC3339),
			strconv.FormatInt(entry.ActorID, 10),
			entry.Action,
			entry.EntityKind,
			strconv.FormatInt(entry.EntityID, 10),
			entry.Description,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
