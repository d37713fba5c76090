package store

import (
	"encoding/json"
	"fmt"

	"github.com/latchql/latch/internal/ir"
)

func marshalParams(params ir.ParamSchema) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return string(data), nil
}

func unmarshalParams(data string) (ir.ParamSchema, error) {
	if data == "" || data == "null" {
		return nil, nil
	}
	var schema ir.ParamSchema
	if err := json.Unmarshal([]byte(data), &schema); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return schema, nil
}

func marshalValidators(validators []ir.ValidatorRef) (string, error) {
	data, err := json.Marshal(validators)
	if err != nil {
		return "", fmt.Errorf("marshal validators: %w", err)
	}
	return string(data), nil
}

func unmarshalValidators(data string) ([]ir.ValidatorRef, error) {
	if data == "" || data == "null" {
		return nil, nil
	}
	var refs []ir.ValidatorRef
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal validators: %w", err)
	}
	return refs, nil
}

func marshalReferenced(refs []ir.SourceRef) (string, error) {
	data, err := json.Marshal(refs)
	if err != nil {
		return "", fmt.Errorf("marshal referenced: %w", err)
	}
	return string(data), nil
}

func unmarshalReferenced(data string) ([]ir.SourceRef, error) {
	if data == "" || data == "null" {
		return nil, nil
	}
	var refs []ir.SourceRef
	if err := json.Unmarshal([]byte(data), &refs); err != nil {
		return nil, fmt.Errorf("unmarshal referenced: %w", err)
	}
	return refs, nil
}
