package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ref is a relationship field that is either a bare id or an expanded
// document. It is resolved once where data enters the process.
type Ref[T any] struct {
	ID    string
	Value *T
}

func RefID[T any](id string) Ref[T] {
	return Ref[T]{ID: id}
}

func Expanded[T any](id string, v *T) Ref[T] {
	return Ref[T]{ID: id, Value: v}
}

func (r Ref[T]) IsExpanded() bool {
	return r.Value != nil
}

func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.Value != nil {
		return json.Marshal(r.Value)
	}
	return json.Marshal(r.ID)
}

func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = Ref[T]{}
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return err
		}
		*r = Ref[T]{ID: id}
		return nil
	}

	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("ref: %w", err)
	}
	if head.ID == "" {
		return fmt.Errorf("ref: expanded document has no id")
	}

	v := new(T)
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("ref: %w", err)
	}
	*r = Ref[T]{ID: head.ID, Value: v}
	return nil
}
