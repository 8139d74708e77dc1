// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package project

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrSecretMismatch rejects replacing a secret-protected sandbox
// dataset with the wrong secret.
var ErrSecretMismatch = errors.New("secret mismatch")

// AlreadyExistsError rejects creating a project over an existing one.
type AlreadyExistsError struct {
	Name string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("project %q already exists", e.Name)
}

// InvalidNameError rejects project or dataset names outside the allowed
// character set.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid name %q: %s", e.Name, e.Reason)
}
