// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package main

import (
	"errors"
	"io/fs"

	"github.com/Wazzaps/ampm/cache"
	"github.com/Wazzaps/ampm/query"
	"github.com/Wazzaps/ampm/record"
	"github.com/Wazzaps/ampm/repo"
)

// Exit codes of the ampm binary.
const (
	exitOK        = 0
	exitFailure   = 1
	exitNotFound  = 2
	exitAmbiguous = 3
	exitMalformed = 4
	exitIO        = 5
)

// exitCode maps the error taxonomy onto the documented exit codes.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var ambiguous *query.AmbiguousError
	var exprErr *query.ExprError
	var typeMismatch *query.TypeMismatchError
	var formatErr *record.FormatError
	var integrityErr *record.IntegrityError
	var pathErr *fs.PathError

	switch {
	case errors.Is(err, query.ErrNotFound),
		errors.Is(err, repo.ErrNotFound),
		errors.Is(err, cache.ErrOfflineMiss):
		return exitNotFound
	case errors.As(err, &ambiguous):
		return exitAmbiguous
	case errors.As(err, &exprErr),
		errors.As(err, &typeMismatch),
		errors.As(err, &formatErr),
		errors.As(err, &integrityErr):
		return exitMalformed
	case errors.As(err, &pathErr):
		return exitIO
	}
	return exitFailure
}
