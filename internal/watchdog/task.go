package watchdog

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Task is one overdue item reported by the task tracker.
type Task struct {
	ID      flexString `json:"id"`
	Content string     `json:"content"`
	Due     dueDate    `json:"due"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

// dueDate accepts "2026-02-12" or {"date": "2026-02-12", ...}.
type dueDate string

func (d *dueDate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*d = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = dueDate(s)
	case len(b) > 0 && b[0] == '{':
		var obj struct {
			Date     string `json:"date"`
			Datetime string `json:"datetime"`
			String   string `json:"string"`
		}
		if err := json.Unmarshal(b, &obj); err != nil {
			return err
		}
		switch {
		case obj.Date != "":
			*d = dueDate(obj.Date)
		case obj.Datetime != "":
			*d = dueDate(obj.Datetime)
		default:
			*d = dueDate(obj.String)
		}
	default:
		*d = dueDate(b)
	}
	return nil
}

// decodeTasks parses the tracker's stdout. Anything but a JSON array is an
// error.
func decodeTasks(out []byte) ([]Task, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 || out[0] != '[' {
		return nil, fmt.Errorf("task list: expected a JSON array")
	}
	var tasks []Task
	if err := json.Unmarshal(out, &tasks); err != nil {
		return nil, fmt.Errorf("task list: %w", err)
	}
	return tasks, nil
}
