// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package policy

import (
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/policy/types"
)

// IsUnknownEntity returns true if the error marks a decision request
// for an entity type not present in the policy set.
func IsUnknownEntity(err error) bool {
	return hasCode(err, types.CodeUnknownEntity)
}

// IsUnresolvedField returns true if the error marks a condition that
// referenced a field absent from the loaded record. Callers can retry
// the decision after loading the required relation or field.
func IsUnresolvedField(err error) bool {
	return hasCode(err, types.CodeUnresolvedField)
}

// IsSchemaParse returns true if the error marks schema source that
// failed to parse or compile.
func IsSchemaParse(err error) bool {
	return hasCode(err, types.CodeSchemaParse)
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
