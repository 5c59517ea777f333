// Package perms encodes and decodes the CRUD operation grants carried by a
// permission record. Several textual encodings exist in the wild (raw letter
// runs, comma-joined letters, JSON arrays, Postgres array literals), so the
// decoder accepts all of them while Encode always emits the canonical form.
package perms

import (
	"strings"
)

// Op identifies a single CRUD operation.
type Op uint8

const (
	OpCreate Op = 1 << iota
	OpRead
	OpUpdate
	OpDelete
)

// Letter returns the canonical single-letter encoding for the operation.
func (o Op) Letter() string {
	switch o {
	case OpCreate:
		return "C"
	case OpRead:
		return "R"
	case OpUpdate:
		return "U"
	case OpDelete:
		return "D"
	}
	return ""
}

// ActionKind returns the audit action recorded for the operation.
func (o Op) ActionKind() string {
	switch o {
	case OpCreate:
		return "INSERT"
	case OpRead:
		return "SELECT"
	case OpUpdate:
		return "UPDATE"
	case OpDelete:
		return "DELETE"
	}
	return ""
}

// OpSet is a bitset over {Create, Read, Update, Delete}.
type OpSet uint8

// All is the full CRUD grant.
const All = OpSet(OpCreate | OpRead | OpUpdate | OpDelete)

// NewOpSet builds a set from individual operations.
func NewOpSet(ops ...Op) OpSet {
	var s OpSet
	for _, op := range ops {
		s |= OpSet(op)
	}
	return s
}

// Has reports whether the set grants op.
func (s OpSet) Has(op Op) bool {
	return s&OpSet(op) != 0
}

// IsEmpty reports whether the set grants nothing.
func (s OpSet) IsEmpty() bool {
	return s == 0
}

// Union returns the combined grant of both sets.
func (s OpSet) Union(other OpSet) OpSet {
	return s | other
}

// Encode renders the canonical textual form: the granted letters in C,R,U,D
// order, e.g. "CRU". The empty set encodes to "".
func (s OpSet) Encode() string {
	var b strings.Builder
	for _, op := range []Op{OpCreate, OpRead, OpUpdate, OpDelete} {
		if s.Has(op) {
			b.WriteString(op.Letter())
		}
	}
	return b.String()
}

// String implements fmt.Stringer.
func (s OpSet) String() string {
	return s.Encode()
}

// Decode parses any of the tolerated encodings into an OpSet. Unparseable or
// empty input decodes to the empty set, never an error: a permission with no
// readable grant is simply powerless.
func Decode(text string) OpSet {
	var s OpSet
	for _, r := range text {
		switch r {
		case 'C', 'c':
			s |= OpSet(OpCreate)
		case 'R', 'r':
			s |= OpSet(OpRead)
		case 'U', 'u':
			s |= OpSet(OpUpdate)
		case 'D', 'd':
			s |= OpSet(OpDelete)
		}
	}
	// Single letters cover raw runs ("CRUD"), comma/semicolon joins ("C,R"),
	// JSON arrays (["C","R"]) and array literals ({C,R}) alike, but spelled
	// out words need their own pass so "delete" does not read as C+D+R+U...
	if hasWord(text) {
		s = decodeWords(text)
	}
	return s
}

// Authorizes reports whether the encoded grant permits op.
func Authorizes(text string, op Op) bool {
	return Decode(text).Has(op)
}

func hasWord(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range []string{"create", "read", "update", "delete"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func decodeWords(text string) OpSet {
	var s OpSet
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch r {
		case ',', ';', ' ', '[', ']', '{', '}', '"', '\'', '\t', '\n':
			return true
		}
		return false
	})
	for _, tok := range tokens {
		switch tok {
		case "create", "c":
			s |= OpSet(OpCreate)
		case "read", "r":
			s |= OpSet(OpRead)
		case "update", "u":
			s |= OpSet(OpUpdate)
		case "delete", "d":
			s |= OpSet(OpDelete)
		}
	}
	return s
}
