// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store

import (
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/policy/types"
)

// IsNotFound returns true if the error is a SCHEMA_NOT_FOUND error
// from the schema store.
func IsNotFound(err error) bool {
	return hasCode(err, types.CodeSchemaNotFound)
}

// IsConflict returns true if the error is a SCHEMA_EXISTS error,
// raised when creating a schema whose name is already taken.
func IsConflict(err error) bool {
	return hasCode(err, "SCHEMA_EXISTS")
}

func hasCode(err error, code string) bool {
	if err == nil {
		return false
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	return oopsErr.Code() == code
}
