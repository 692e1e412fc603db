package schema

import (
	"fmt"
	"strings"
)

// Wildcard is the path head that scopes a constraint to every provider of a
// plan rather than to one resolved feature.
const Wildcard = "*"

// Path is a parsed feature path such as "transaction/person:seller/name".
// Every segment before the last names a relationship hop; the last segment
// names either a further unit type or an attribute, which only resolution
// against a registry can decide.
type Path struct {
	// Generic is set when the path begins with the "*" wildcard.
	Generic bool
	// Segments holds the remaining segments in order, wildcard excluded.
	Segments []string
}

// PathError reports a malformed feature path.
type PathError struct {
	// Input is the full text handed to ParsePath.
	Input string
	// Pos is the byte offset of the offending segment.
	Pos int
	// Message describes the defect.
	Message string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("schema: malformed path %q at offset %d: %s", e.Input, e.Pos, e.Message)
}

// ParsePath parses a feature path. The grammar is slash-separated segments,
// each a name with an optional colon-separated qualifier; a leading "*"
// makes the path generic. The wildcard is only legal as the first segment
// and never stands alone.
func ParsePath(text string) (Path, error) {
	if text == "" {
		return Path{}, &PathError{Input: text, Pos: 0, Message: "empty path"}
	}
	var p Path
	pos := 0
	for i, seg := range strings.Split(text, "/") {
		switch {
		case seg == "":
			return Path{}, &PathError{Input: text, Pos: pos, Message: "empty segment"}
		case seg == Wildcard:
			if i != 0 {
				return Path{}, &PathError{Input: text, Pos: pos, Message: "wildcard is only legal as the first segment"}
			}
			p.Generic = true
		case !ValidName(seg):
			return Path{}, &PathError{Input: text, Pos: pos, Message: fmt.Sprintf("invalid segment %q", seg)}
		default:
			p.Segments = append(p.Segments, seg)
		}
		pos += len(seg) + 1
	}
	if len(p.Segments) == 0 {
		return Path{}, &PathError{Input: text, Pos: 0, Message: "wildcard requires a following segment"}
	}
	return p, nil
}

// String reassembles the canonical text of the path.
func (p Path) String() string {
	if p.Generic {
		return Wildcard + "/" + strings.Join(p.Segments, "/")
	}
	return strings.Join(p.Segments, "/")
}

// Terminal returns the last segment.
func (p Path) Terminal() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[len(p.Segments)-1]
}

// Hops returns every segment before the terminal.
func (p Path) Hops() []string {
	if len(p.Segments) == 0 {
		return nil
	}
	return p.Segments[:len(p.Segments)-1]
}

// SplitQualifier splits a segment into its name and optional qualifier:
// "person:seller" yields ("person", "seller").
func SplitQualifier(segment string) (name, qualifier string) {
	if i := strings.IndexByte(segment, ':'); i >= 0 {
		return segment[:i], segment[i+1:]
	}
	return segment, ""
}

// JoinVia joins path fragments with slashes, skipping empty fragments. It is
// the inverse convenience for building via prefixes.
func JoinVia(parts ...string) string {
	kept := parts[:0:0]
	for _, part := range parts {
		if part != "" {
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, "/")
}
