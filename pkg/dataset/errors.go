// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package dataset

import "fmt"

// InputError reports malformed client input: an unknown filter
// sub-operation, a bad aggregation descriptor, a non-list payload.
type InputError struct {
	Text string
}

func (e *InputError) Error() string {
	return e.Text
}

// NewInputError returns a new InputError
func NewInputError(format string, a ...interface{}) *InputError {
	return &InputError{Text: fmt.Sprintf(format, a...)}
}

// OpNotAllowedError reports an operation rejected by the dataset's
// allowed_operations configuration.
type OpNotAllowedError struct {
	Op      string
	Dataset string
}

func (e *OpNotAllowedError) Error() string {
	return fmt.Sprintf("operation %q is not allowed on dataset %q", e.Op, e.Dataset)
}
