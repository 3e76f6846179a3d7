// Copyright 2024 Wazzaps
// Licensed under the Apache License, Version 2.0. See LICENSE file.

package query

import (
	"errors"
	"sort"
	"strings"

	"github.com/Wazzaps/ampm/record"
)

// ErrNotFound is returned when no candidate survives filtering.
var ErrNotFound = errors.New("no matching artifact")

// AmbiguousError is returned when more than one candidate survives
// uniqueness checking and selection. Distinguishing lists the attributes
// whose values split the survivors, so the user knows what to constrain.
type AmbiguousError struct {
	Distinguishing []string
}

func (e *AmbiguousError) Error() string {
	if len(e.Distinguishing) == 0 {
		return "ambiguous query: multiple indistinguishable artifacts match"
	}
	return "ambiguous query: multiple artifacts match, differing in " + strings.Join(e.Distinguishing, ", ")
}

// Query is a compiled set of attribute constraints against a type prefix.
type Query struct {
	Type        string
	constraints map[string]Expr
	wildcard    bool
}

// New compiles raw `key=expr` constraint strings into a Query. The @any
// pseudo-key is consumed here and only flips the wildcard flag.
func New(typePrefix string, raw []string) (*Query, error) {
	q := &Query{Type: typePrefix, constraints: make(map[string]Expr, len(raw))}
	for _, rc := range raw {
		key, expr, err := ParseConstraint(rc)
		if err != nil {
			return nil, err
		}
		if key == Wildcard {
			q.wildcard = true
			continue
		}
		q.constraints[key] = expr
	}
	return q, nil
}

// attrsOf is the attribute view the engine matches against: the record's
// attribute map plus pubdate, which is queryable like any other attribute.
func attrsOf(rec *record.Record) map[string]string {
	attrs := make(map[string]string, len(rec.Attributes)+1)
	for k, v := range rec.Attributes {
		attrs[k] = v
	}
	if _, shadowed := attrs["pubdate"]; !shadowed {
		attrs["pubdate"] = rec.Pubdate
	}
	return attrs
}

// matches applies the filter-bearing constraints to one candidate. A
// missing attribute fails any matcher constraint; selector-only
// constraints do not filter here.
func (q *Query) matches(rec *record.Record) bool {
	if !record.TypeMatches(rec.Type, q.Type) {
		return false
	}
	attrs := attrsOf(rec)
	for key, expr := range q.constraints {
		if isIgnore(expr) {
			continue
		}
		value, present := attrs[key]
		switch expr.(type) {
		case dateLatestExpr, numExpr:
			// pure selectors impose no filter
			continue
		default:
			if !present || !expr.Matches(value) {
				return false
			}
		}
	}
	return true
}

// Filter returns every candidate that passes the matcher constraints, in
// the order given. This is the `list` semantics; Resolve builds on it.
func (q *Query) Filter(candidates []record.Entry) []record.Entry {
	var out []record.Entry
	for _, c := range candidates {
		if q.matches(c.Record) {
			out = append(out, c)
		}
	}
	return out
}

// relevant reports whether an attribute participates in uniqueness
// checking.
func (q *Query) relevant(key string) bool {
	expr, constrained := q.constraints[key]
	if !constrained {
		return !q.wildcard
	}
	if isIgnore(expr) || isSelector(expr) {
		return false
	}
	return true
}

// Resolve runs the full matching pipeline and returns exactly one record:
// filter, uniqueness partitioning over the relevant attributes, then
// selector reduction. Anything other than exactly one survivor is an
// error.
func (q *Query) Resolve(candidates []record.Entry) (record.Entry, error) {
	survivors := q.Filter(candidates)
	if len(survivors) == 0 {
		return record.Entry{}, ErrNotFound
	}

	if err := q.checkUnique(survivors); err != nil {
		return record.Entry{}, err
	}

	survivors, err := q.selectExtremal(survivors)
	if err != nil {
		return record.Entry{}, err
	}
	switch len(survivors) {
	case 0:
		return record.Entry{}, ErrNotFound
	case 1:
		return survivors[0], nil
	}
	return record.Entry{}, &AmbiguousError{Distinguishing: distinguishing(survivors)}
}

// checkUnique partitions candidates by their relevant attribute values and
// fails when more than one partition remains.
func (q *Query) checkUnique(candidates []record.Entry) error {
	keys := map[string]bool{}
	for _, c := range candidates {
		for k := range attrsOf(c.Record) {
			if q.relevant(k) {
				keys[k] = true
			}
		}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	partitions := map[string]bool{}
	for _, c := range candidates {
		attrs := attrsOf(c.Record)
		var sb strings.Builder
		for _, k := range sorted {
			v, present := attrs[k]
			if !present {
				v = "\x00absent"
			}
			sb.WriteString(k)
			sb.WriteByte('\x00')
			sb.WriteString(v)
			sb.WriteByte('\x00')
		}
		partitions[sb.String()] = true
	}
	if len(partitions) > 1 {
		diff := make([]string, 0, len(sorted))
		for _, k := range sorted {
			if attributeDiffers(candidates, k) {
				diff = append(diff, k)
			}
		}
		return &AmbiguousError{Distinguishing: diff}
	}
	return nil
}

// selectExtremal applies each selector-bearing constraint in key order,
// keeping only the candidates with the extremal value. Candidates lacking
// the attribute cannot be compared and are dropped first.
func (q *Query) selectExtremal(candidates []record.Entry) ([]record.Entry, error) {
	keys := make([]string, 0, len(q.constraints))
	for k, expr := range q.constraints {
		if isSelector(expr) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		sel := q.constraints[key].(Selector)
		var kept []record.Entry
		var best string
		for _, c := range candidates {
			value, present := attrsOf(c.Record)[key]
			if !present {
				continue
			}
			if len(kept) == 0 {
				kept = append(kept, c)
				best = value
				continue
			}
			cmp, err := sel.Compare(value, best)
			if err != nil {
				return nil, &TypeMismatchError{Key: key, Value: value, Err: err}
			}
			if !sel.PicksGreatest() {
				cmp = -cmp
			}
			switch {
			case cmp > 0:
				kept = kept[:0]
				kept = append(kept, c)
				best = value
			case cmp == 0:
				kept = append(kept, c)
			}
		}
		candidates = kept
	}
	return candidates, nil
}

// attributeDiffers reports whether candidates disagree on an attribute's
// value (absence counts as a distinct value).
func attributeDiffers(candidates []record.Entry, key string) bool {
	var first string
	var firstPresent bool
	for i, c := range candidates {
		v, present := attrsOf(c.Record)[key]
		if i == 0 {
			first, firstPresent = v, present
			continue
		}
		if present != firstPresent || v != first {
			return true
		}
	}
	return false
}

// distinguishing names the attributes that split a set of indistinct
// survivors, for the ambiguity error message.
func distinguishing(candidates []record.Entry) []string {
	keys := map[string]bool{}
	for _, c := range candidates {
		for k := range attrsOf(c.Record) {
			keys[k] = true
		}
	}
	var diff []string
	for k := range keys {
		if attributeDiffers(candidates, k) {
			diff = append(diff, k)
		}
	}
	sort.Strings(diff)
	return diff
}
