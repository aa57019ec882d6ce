package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type ActionType string

const (
	ActionDelete      ActionType = "delete"
	ActionMarkPaid    ActionType = "markPaid"
	ActionMarkPending ActionType = "markPending"
	ActionEmail       ActionType = "email"
)

// Snapshot holds the affected rows as they were before an admin action.
type Snapshot []Registration

func (s Snapshot) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *Snapshot) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("unsupported type %T for history snapshot", src)
	}
}

func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s))
	for _, r := range s {
		ids = append(ids, r.ID)
	}
	return ids
}

type HistoryEntry struct {
	ID        string     `db:"id" json:"id"`
	Type      ActionType `db:"type" json:"type"`
	Snapshot  Snapshot   `db:"snapshot" json:"snapshot"`
	Detail    string     `db:"detail" json:"detail,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	Undoable  bool       `db:"undoable" json:"undoable"`
	UndoneAt  *time.Time `db:"undone_at" json:"undone_at,omitempty"`
}
