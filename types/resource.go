package types

import "time"

// Resource kinds tracked by the directory
const (
	KindInstance = "instance"
	KindVolume   = "volume"
	KindSnapshot = "snapshot"
	KindDatabase = "database"
)

// Resource is a discovered cloud resource (VM, disk, snapshot, etc).
// ID is the only durable key; re-discovery of the same ID overwrites
// mutable fields and refreshes LastSeenAt, never duplicates.
type Resource struct {
	ID         string            `json:"id"`
	Kind       string            `json:"kind"`
	Name       string            `json:"name"`
	Provider   string            `json:"provider"`
	AccountID  string            `json:"account_id"`
	Location   string            `json:"location"`
	Status     string            `json:"status"`
	Tags       map[string]string `json:"tags,omitempty"`
	Properties map[string]any    `json:"properties,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	LastSeenAt time.Time         `json:"last_seen_at"`
}

// ResourceFilter for querying the resource directory
type ResourceFilter struct {
	Kind      string            `json:"kind,omitempty"`
	AccountID string            `json:"account_id,omitempty"`
	Location  string            `json:"location,omitempty"`
	Tags      map[string]string `json:"tags,omitempty"`
	IDs       []string          `json:"ids,omitempty"`
}

// Matches checks if resource matches filter criteria
func (r *Resource) Matches(filter ResourceFilter) bool {
	return r.matchesBasicFields(filter) && r.matchesIDs(filter) && r.matchesTags(filter)
}

// matchesBasicFields checks kind, account, location
func (r *Resource) matchesBasicFields(filter ResourceFilter) bool {
	if filter.Kind != "" && r.Kind != filter.Kind {
		return false
	}
	if filter.AccountID != "" && r.AccountID != filter.AccountID {
		return false
	}
	if filter.Location != "" && r.Location != filter.Location {
		return false
	}
	return true
}

// matchesIDs checks if resource ID is in filter list
func (r *Resource) matchesIDs(filter ResourceFilter) bool {
	if len(filter.IDs) == 0 {
		return true
	}
	for _, id := range filter.IDs {
		if r.ID == id {
			return true
		}
	}
	return false
}

// matchesTags checks if all filter tags match resource tags
func (r *Resource) matchesTags(filter ResourceFilter) bool {
	for key, value := range filter.Tags {
		if r.Tags[key] != value {
			return false
		}
	}
	return true
}

// PropertyString returns a string property, or "" when absent
func (r *Resource) PropertyString(key string) string {
	if v, ok := r.Properties[key].(string); ok {
		return v
	}
	return ""
}

// PropertyBool returns a bool property, or false when absent
func (r *Resource) PropertyBool(key string) bool {
	if v, ok := r.Properties[key].(bool); ok {
		return v
	}
	return false
}

// PropertyFloat returns a numeric property, or 0 when absent.
// JSON round-trips store numbers as float64, so both int and
// float64 are accepted.
func (r *Resource) PropertyFloat(key string) float64 {
	switch v := r.Properties[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}
