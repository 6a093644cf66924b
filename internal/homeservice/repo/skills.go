package repo

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// SkillRef is one entry of technicians.skills. Older profiles stored the bare
// service id (number or numeric string); newer ones store {"serviceId": n}.
type SkillRef struct {
	ServiceID int64
	Valid     bool
}

func (s *SkillRef) UnmarshalJSON(data []byte) error {
	*s = SkillRef{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	switch data[0] {
	case '"':
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
		s.set(strings.TrimSpace(raw))
	case '{':
		var obj struct {
			ServiceID json.RawMessage `json:"serviceId"`
			ID        json.RawMessage `json:"id"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil
		}
		inner := obj.ServiceID
		if len(inner) == 0 {
			inner = obj.ID
		}
		if len(inner) > 0 && inner[0] != '{' {
			return s.UnmarshalJSON(inner)
		}
	default:
		s.set(string(data))
	}
	return nil
}

func (s *SkillRef) set(raw string) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil || f != math.Trunc(f) {
			return
		}
		id = int64(f)
	}
	if id <= 0 {
		return
	}
	s.ServiceID = id
	s.Valid = true
}

// ParseSkills normalizes the stored skills column to canonical service ids.
// Unknown entries are dropped.
func ParseSkills(raw []byte) []int64 {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var refs []SkillRef
	if err := json.Unmarshal(raw, &refs); err != nil {
		return nil
	}
	seen := make(map[int64]struct{}, len(refs))
	ids := make([]int64, 0, len(refs))
	for _, ref := range refs {
		if !ref.Valid {
			continue
		}
		if _, dup := seen[ref.ServiceID]; dup {
			continue
		}
		seen[ref.ServiceID] = struct{}{}
		ids = append(ids, ref.ServiceID)
	}
	return ids
}
