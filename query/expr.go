// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package query

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver"
)

// Expr is one parsed attribute expression from the right side of
// `-a key=<expr>`. Matches implements filter semantics; expressions whose
// role is selection (ignore, date, num) match everything.
type Expr interface {
	Matches(value string) bool
	String() string
}

// Selector is an Expr that also orders values so the engine can reduce a
// set of candidates to the extremal one.
type Selector interface {
	Expr
	// Compare orders two attribute values. The parse error is returned for
	// values that do not parse, and the engine reports it as a
	// TypeMismatchError; by the time a selector runs the value is
	// load-bearing and cannot be shrugged off.
	Compare(a, b string) (int, error)
	// PicksGreatest is true when the selector keeps the greatest value,
	// false when it keeps the least.
	PicksGreatest() bool
}

// ExprError is a malformed constraint expression: an unknown tag, a missing
// body, or a body that does not parse.
type ExprError struct {
	Key    string
	Expr   string
	Reason string
}

func (e *ExprError) Error() string {
	return fmt.Sprintf("malformed expression for attribute %q: %s (%s)", e.Key, e.Expr, e.Reason)
}

// TypeMismatchError is an attribute value that a typed selector could not
// interpret, e.g. @num:biggest over "banana".
type TypeMismatchError struct {
	Key   string
	Value string
	Err   error
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("attribute %q value %q: %s", e.Key, e.Value, e.Err)
}

func (e *TypeMismatchError) Unwrap() error { return e.Err }

// Wildcard is the pseudo-key that, constrained with @ignore, excludes every
// attribute not explicitly named in the query from uniqueness checking.
const Wildcard = "@any"

type literalExpr struct{ want string }

func (e literalExpr) Matches(value string) bool { return value == e.want }
func (e literalExpr) String() string            { return e.want }

type ignoreExpr struct{}

func (ignoreExpr) Matches(string) bool { return true }
func (ignoreExpr) String() string      { return "@ignore" }

type regexExpr struct {
	pattern *regexp.Regexp
	source  string
}

func (e regexExpr) Matches(value string) bool { return e.pattern.MatchString(value) }
func (e regexExpr) String() string            { return "@regex:" + e.source }

type globExpr struct{ pattern string }

func (e globExpr) Matches(value string) bool {
	ok, err := path.Match(e.pattern, value)
	return err == nil && ok
}
func (e globExpr) String() string { return "@glob:" + e.pattern }

type semverExpr struct {
	rng    *semver.Constraints
	source string
}

func (e semverExpr) Matches(value string) bool {
	v, err := semver.NewVersion(value)
	if err != nil {
		return false
	}
	return e.rng.Check(v)
}

func (e semverExpr) Compare(a, b string) (int, error) {
	va, err := semver.NewVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

func (e semverExpr) PicksGreatest() bool { return true }
func (e semverExpr) String() string      { return "@semver:" + e.source }

type dateLatestExpr struct{}

func (dateLatestExpr) Matches(string) bool { return true }

func (dateLatestExpr) Compare(a, b string) (int, error) {
	ta, err := time.Parse(time.RFC3339, a)
	if err != nil {
		return 0, err
	}
	tb, err := time.Parse(time.RFC3339, b)
	if err != nil {
		return 0, err
	}
	return ta.Compare(tb), nil
}

func (dateLatestExpr) PicksGreatest() bool { return true }
func (dateLatestExpr) String() string      { return "@date:latest" }

type numExpr struct{ biggest bool }

func (numExpr) Matches(string) bool { return true }

func (numExpr) Compare(a, b string) (int, error) {
	na, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, err
	}
	nb, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return 0, err
	}
	switch {
	case na < nb:
		return -1, nil
	case na > nb:
		return 1, nil
	}
	return 0, nil
}

func (e numExpr) PicksGreatest() bool { return e.biggest }

func (e numExpr) String() string {
	if e.biggest {
		return "@num:biggest"
	}
	return "@num:smallest"
}

// isIgnore reports whether the expression is @ignore.
func isIgnore(e Expr) bool {
	_, ok := e.(ignoreExpr)
	return ok
}

// isSelector reports whether the expression carries selection semantics.
func isSelector(e Expr) bool {
	_, ok := e.(Selector)
	return ok
}

// ParseExpr parses the value side of a constraint. Anything not starting
// with '@' is a literal; otherwise the form is @<tag> or @<tag>:<body>.
func ParseExpr(key, s string) (Expr, error) {
	if !strings.HasPrefix(s, "@") {
		return literalExpr{want: s}, nil
	}
	tag, body := s[1:], ""
	if i := strings.Index(tag, ":"); i >= 0 {
		tag, body = tag[:i], tag[i+1:]
	}
	switch tag {
	case "ignore":
		if body != "" {
			return nil, &ExprError{Key: key, Expr: s, Reason: "@ignore takes no body"}
		}
		return ignoreExpr{}, nil
	case "regex":
		if body == "" {
			return nil, &ExprError{Key: key, Expr: s, Reason: "missing pattern"}
		}
		// anchored: the pattern describes the whole attribute value, same
		// as glob matching
		re, err := regexp.Compile(`\A(?:` + body + `)\z`)
		if err != nil {
			return nil, &ExprError{Key: key, Expr: s, Reason: err.Error()}
		}
		return regexExpr{pattern: re, source: body}, nil
	case "glob":
		if body == "" {
			return nil, &ExprError{Key: key, Expr: s, Reason: "missing pattern"}
		}
		if _, err := path.Match(body, ""); err != nil {
			return nil, &ExprError{Key: key, Expr: s, Reason: err.Error()}
		}
		return globExpr{pattern: body}, nil
	case "semver":
		if body == "" {
			return nil, &ExprError{Key: key, Expr: s, Reason: "missing range"}
		}
		rng, err := semver.NewConstraint(body)
		if err != nil {
			return nil, &ExprError{Key: key, Expr: s, Reason: err.Error()}
		}
		return semverExpr{rng: rng, source: body}, nil
	case "date":
		if body != "latest" {
			return nil, &ExprError{Key: key, Expr: s, Reason: "only @date:latest is supported"}
		}
		return dateLatestExpr{}, nil
	case "num":
		switch body {
		case "biggest":
			return numExpr{biggest: true}, nil
		case "smallest":
			return numExpr{biggest: false}, nil
		}
		return nil, &ExprError{Key: key, Expr: s, Reason: "@num wants biggest or smallest"}
	}
	return nil, &ExprError{Key: key, Expr: s, Reason: "unknown tag @" + tag}
}

// ParseConstraint splits a raw `key=expr` pair as given on the command line
// and parses the expression.
func ParseConstraint(raw string) (string, Expr, error) {
	i := strings.Index(raw, "=")
	if i <= 0 {
		return "", nil, &ExprError{Key: raw, Expr: raw, Reason: "constraint is not key=value"}
	}
	key, val := raw[:i], raw[i+1:]
	expr, err := ParseExpr(key, val)
	if err != nil {
		return "", nil, err
	}
	if key == Wildcard && !isIgnore(expr) {
		return "", nil, &ExprError{Key: key, Expr: val, Reason: "@any only accepts @ignore"}
	}
	return key, expr, nil
}
