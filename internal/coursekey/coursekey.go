// Copyright 2026 The Courseguard Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package coursekey parses the opaque identifiers the learning platform
// uses for course runs, content libraries and content blocks.
//
// Keys are treated as opaque strings everywhere except for the two
// structural features authorization needs: the organization segment and
// whether the key names a course run at all.
package coursekey

import (
	"errors"
	"strings"
)

// Kind classifies a parsed key.
type Kind string

const (
	KindCourse  Kind = "course"
	KindLibrary Kind = "library"
)

const (
	coursePrefix  = "course-v1:"
	libraryPrefix = "library-v1:"
	blockPrefix   = "block-v1:"
)

var (
	ErrInvalidKey      = errors.New("invalid course key")
	ErrInvalidUsageKey = errors.New("invalid usage key")
)

// CourseKey identifies a course run or a content library.
//
// The zero value is invalid; construct via Parse or MustParse.
type CourseKey struct {
	raw  string
	org  string
	kind Kind
}

// Parse parses a course or library key. Supported forms:
//
//	course-v1:Org+Course+Run
//	library-v1:Org+Library
//	Org/Course/Run          (legacy)
func Parse(s string) (CourseKey, error) {
	switch {
	case strings.HasPrefix(s, coursePrefix):
		org, ok := firstSegment(strings.TrimPrefix(s, coursePrefix), "+", 3)
		if !ok {
			return CourseKey{}, ErrInvalidKey
		}
		return CourseKey{raw: s, org: org, kind: KindCourse}, nil
	case strings.HasPrefix(s, libraryPrefix):
		org, ok := firstSegment(strings.TrimPrefix(s, libraryPrefix), "+", 2)
		if !ok {
			return CourseKey{}, ErrInvalidKey
		}
		return CourseKey{raw: s, org: org, kind: KindLibrary}, nil
	case strings.Count(s, "/") == 2 && !strings.Contains(s, ":"):
		org, ok := firstSegment(s, "/", 3)
		if !ok {
			return CourseKey{}, ErrInvalidKey
		}
		return CourseKey{raw: s, org: org, kind: KindCourse}, nil
	default:
		return CourseKey{}, ErrInvalidKey
	}
}

// MustParse is Parse for test fixtures and constants; it panics on error.
func MustParse(s string) CourseKey {
	k, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return k
}

// String returns the key exactly as it was written.
func (k CourseKey) String() string { return k.raw }

// Org returns the organization segment of the key.
func (k CourseKey) Org() string { return k.org }

// Kind reports whether the key names a course run or a library.
func (k CourseKey) Kind() Kind { return k.kind }

// IsCourse reports whether the key is course-shaped. Library keys parse
// but never resolve to permissions.
func (k CourseKey) IsCourse() bool { return k.kind == KindCourse }

// IsZero reports whether the key is the unset zero value.
func (k CourseKey) IsZero() bool { return k.raw == "" }

// UsageKey identifies a single content block inside a course run.
type UsageKey struct {
	raw    string
	course CourseKey
}

// ParseUsage parses a block locator of the form
//
//	block-v1:Org+Course+Run+type@T+block@B
//
// Only the embedded course run is extracted.
func ParseUsage(s string) (UsageKey, error) {
	if !strings.HasPrefix(s, blockPrefix) {
		return UsageKey{}, ErrInvalidUsageKey
	}
	parts := strings.Split(strings.TrimPrefix(s, blockPrefix), "+")
	if len(parts) < 5 {
		return UsageKey{}, ErrInvalidUsageKey
	}
	course, err := Parse(coursePrefix + strings.Join(parts[:3], "+"))
	if err != nil {
		return UsageKey{}, ErrInvalidUsageKey
	}
	return UsageKey{raw: s, course: course}, nil
}

// String returns the locator exactly as it was written.
func (u UsageKey) String() string { return u.raw }

// CourseKey returns the course run the block belongs to.
func (u UsageKey) CourseKey() CourseKey { return u.course }

// firstSegment returns the first of exactly n sep-separated, non-empty
// segments.
func firstSegment(s, sep string, n int) (string, bool) {
	parts := strings.Split(s, sep)
	if len(parts) != n {
		return "", false
	}
	for _, p := range parts {
		if p == "" {
			return "", false
		}
	}
	return parts[0], true
}
