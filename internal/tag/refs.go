package tag

import (
	"encoding/json"
	"strings"

	"github.com/taghive/taghive/internal/apperr"
)

// Ref is one element of an added_tags list: either a positive integer
// (an existing tag id) or a non-empty string (a tag name, created on
// demand). Exactly one of ID and Name is set.
type Ref struct {
	ID   int64
	Name string
}

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (r *Ref) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, `"`) {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return apperr.BadRequestf("invalid tag reference %s", data)
		}
		if name == "" || len(name) > 255 {
			return apperr.BadRequestf("tag name must be 1..255 characters")
		}
		r.Name = name
		return nil
	}

	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return apperr.BadRequestf("tag reference must be an integer or a string")
	}
	if id <= 0 {
		return apperr.BadRequestf("tag id must be a positive integer")
	}
	r.ID = id
	return nil
}

// MarshalJSON renders the ref back as the value it was parsed from.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r.Name != "" {
		return json.Marshal(r.Name)
	}
	return json.Marshal(r.ID)
}

// splitRefs partitions refs into unique ids and unique names. Name
// deduplication is case-insensitive and keeps the first spelling.
func splitRefs(refs []Ref) (ids []int64, names []string) {
	seenIDs := map[int64]struct{}{}
	seenNames := map[string]struct{}{}
	for _, r := range refs {
		if r.ID > 0 {
			if _, ok := seenIDs[r.ID]; !ok {
				seenIDs[r.ID] = struct{}{}
				ids = append(ids, r.ID)
			}
			continue
		}
		key := strings.ToLower(r.Name)
		if _, ok := seenNames[key]; !ok {
			seenNames[key] = struct{}{}
			names = append(names, r.Name)
		}
	}
	return ids, names
}
