package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
)

// Records stores StorageRecords as JSON under <prefix>/storage/<id>
type Records struct {
	store  Store
	prefix string
}

// NewRecords creates a typed view over store; an empty prefix means "/unistor"
func NewRecords(store Store, prefix string) *Records {
	if prefix == "" {
		prefix = "/unistor"
	}
	return &Records{store: store, prefix: path.Join(prefix, "storage")}
}

func (r *Records) key(id string) string {
	return path.Join(r.prefix, id)
}

// Save writes a record, replacing any previous version
func (r *Records) Save(ctx context.Context, rec *StorageRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal storage record: %w", err)
	}
	if err := r.store.Put(ctx, r.key(rec.ID), string(data)); err != nil {
		return fmt.Errorf("failed to store storage record %s: %w", rec.ID, err)
	}
	return nil
}

// Get loads a record, ErrNotFound when absent
func (r *Records) Get(ctx context.Context, id string) (*StorageRecord, error) {
	raw, err := r.store.Get(ctx, r.key(id))
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, fmt.Errorf("storage %s: %w", id, ErrNotFound)
	}

	var rec StorageRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal storage record %s: %w", id, err)
	}
	return &rec, nil
}

// List returns every record ordered by creation time, then id. Records
// that fail to decode are skipped.
func (r *Records) List(ctx context.Context) ([]*StorageRecord, error) {
	kvs, err := r.store.GetPrefix(ctx, r.prefix+"/")
	if err != nil {
		return nil, err
	}

	out := make([]*StorageRecord, 0, len(kvs))
	for key, raw := range kvs {
		if strings.Contains(strings.TrimPrefix(key, r.prefix+"/"), "/") {
			continue
		}
		var rec StorageRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes a record; deleting an absent record is not an error
func (r *Records) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, r.key(id))
}
