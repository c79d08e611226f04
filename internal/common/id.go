package common

import (
	"github.com/google/uuid"
)

// NewOperationID generates a unique operation ID with the "op_" prefix
// Format: op_<uuid>
func NewOperationID() string {
	return "op_" + uuid.New().String()
}

// NewRunID generates a unique maintenance run ID with the "run_" prefix
// Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewRecordID generates a unique record ID with the "rec_" prefix
// Format: rec_<uuid>
func NewRecordID() string {
	return "rec_" + uuid.New().String()
}
