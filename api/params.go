package api

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind selects which declaration shape of a training script is edited.
type Kind string

const (
	// KindArgparse covers parser.add_argument('--name', default=..., type=..., help=...) calls.
	KindArgparse Kind = "argparse"
	// KindConfig covers self.<name> = <literal> assignments inside Config.__init__.
	KindConfig Kind = "config"
	// KindDict covers a top-level `parameter = {'key': <literal>, ...}` mapping.
	KindDict Kind = "dict"
)

// Kinds lists every supported declaration shape.
var Kinds = []Kind{KindArgparse, KindConfig, KindDict}

// ParseKind maps a user supplied string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindArgparse, "args", "cli":
		return KindArgparse, nil
	case KindConfig, "class":
		return KindConfig, nil
	case KindDict, "parameter":
		return KindDict, nil
	default:
		return "", fmt.Errorf("unknown parameter kind %q (want argparse, config or dict)", s)
	}
}

// ValueType is the syntactic type of a literal as written in the source.
type ValueType string

const (
	TypeString ValueType = "str"
	TypeInt    ValueType = "int"
	TypeFloat  ValueType = "float"
	TypeBool   ValueType = "bool"
	TypeNone   ValueType = "none"
	// TypeUnsupported marks a right-hand side that is not a simple literal.
	// Such values are surfaced read-only.
	TypeUnsupported ValueType = "unsupported"
)

// Value is a literal as found in the source.
type Value struct {
	Type ValueType `json:"type"`
	// Raw is the literal exactly as written, quotes included.
	Raw string `json:"raw"`
	// Text is the user-facing form: unquoted for strings, "None" for
	// TypeNone and TypeUnsupported.
	Text string `json:"text"`
	// Quote is the quote character used by a string literal (' or ").
	Quote string `json:"quote,omitempty"`
}

// ReadOnly reports whether the value cannot be rewritten safely.
func (v Value) ReadOnly() bool { return v.Type == TypeUnsupported }

// Float returns the numeric value for int and float literals.
func (v Value) Float() (float64, bool) {
	if v.Type != TypeInt && v.Type != TypeFloat {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(v.Text, "_", ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Span locates the value literal in the source file.
type Span struct {
	StartByte uint32 `json:"start_byte"`
	EndByte   uint32 `json:"end_byte"`
	Row       uint32 `json:"row"` // 0-indexed
}

// IsZero reports whether no value node was found for the declaration.
func (s Span) IsZero() bool { return s.StartByte == 0 && s.EndByte == 0 }

// Param is one tunable found in a script.
type Param struct {
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	Value Value  `json:"value"`
	// DeclaredType is the identifier passed as type= (argparse only).
	DeclaredType string `json:"declared_type,omitempty"`
	// Help is the help= string (argparse only).
	Help string `json:"help,omitempty"`
	// Line is the 0-indexed row the declaration starts on.
	Line uint32 `json:"line"`
	// Span is zero when the declaration has no value node (argparse without default=).
	Span Span `json:"span"`
}

// QuoteAsString reports whether a rewritten value for p is emitted as a
// quoted string literal. An argparse default written as a number or bool
// keeps that literal kind even under type=str, since argparse only
// converts string defaults.
func (p Param) QuoteAsString() bool {
	if p.Kind == KindArgparse {
		switch p.Value.Type {
		case TypeInt, TypeFloat, TypeBool:
			return false
		}
		return p.DeclaredType == string(TypeString)
	}
	return p.Value.Type == TypeString
}
