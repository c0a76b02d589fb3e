package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// The persisted form of an edge is "predecessorId:type:lagDays". The type
// token accepts the long form (finish-to-start) or the short form (FS),
// case-insensitively. Decoding is permissive so older or hand-edited data
// keeps loading; dangling predecessors are left for the graph builder.

const encodingSep = ":"

// ParseDependencyType maps a long or short type token to a DependencyType.
// The boolean is false when the token is not recognized.
func ParseDependencyType(token string) (DependencyType, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "fs", "finish-to-start", "finish_to_start":
		return FinishToStart, true
	case "ss", "start-to-start", "start_to_start":
		return StartToStart, true
	case "ff", "finish-to-finish", "finish_to_finish":
		return FinishToFinish, true
	case "sf", "start-to-finish", "start_to_finish":
		return StartToFinish, true
	default:
		return FinishToStart, false
	}
}

// FormatDependency encodes an edge in its persisted form. The long type name
// is written and the lag is always present, so the output decodes back to
// the same edge.
func FormatDependency(e DependencyEdge) string {
	typ := e.Type
	if !typ.IsValid() {
		typ = FinishToStart
	}
	return e.PredecessorID + encodingSep + string(typ) + encodingSep + strconv.Itoa(e.LagDays)
}

// ParseDependency decodes a persisted edge. It never fails: an unknown type
// token becomes finish-to-start and a missing or unparsable lag becomes 0.
// Use ValidateEncoding to learn whether any default was applied.
func ParseDependency(raw string) DependencyEdge {
	e, _ := decode(raw)
	return e
}

// ValidateEncoding reports a MalformedEncoding ValidationError when decoding
// raw had to fall back to a default. A nil result means raw is canonical or
// uses an accepted alternative spelling.
func ValidateEncoding(raw string) error {
	_, problems := decode(raw)
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{
		Kind:   KindMalformedEncoding,
		Reason: fmt.Sprintf("%q: %s", raw, strings.Join(problems, "; ")),
	}
}

// ParseDependencies decodes a list of persisted edges in order.
func ParseDependencies(raws []string) []DependencyEdge {
	if len(raws) == 0 {
		return nil
	}
	edges := make([]DependencyEdge, 0, len(raws))
	for _, raw := range raws {
		edges = append(edges, ParseDependency(raw))
	}
	return edges
}

// FormatDependencies encodes a list of edges in order.
func FormatDependencies(edges []DependencyEdge) []string {
	if len(edges) == 0 {
		return nil
	}
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, FormatDependency(e))
	}
	return out
}

func decode(raw string) (DependencyEdge, []string) {
	var problems []string
	parts := strings.SplitN(strings.TrimSpace(raw), encodingSep, 3)

	e := DependencyEdge{
		PredecessorID: strings.TrimSpace(parts[0]),
		Type:          FinishToStart,
	}
	if e.PredecessorID == "" {
		problems = append(problems, "missing predecessor id")
	}

	if len(parts) > 1 {
		if token := strings.TrimSpace(parts[1]); token != "" {
			typ, ok := ParseDependencyType(token)
			if !ok {
				problems = append(problems, fmt.Sprintf("unknown type %q, using %s", token, FinishToStart))
			}
			e.Type = typ
		}
	}

	if len(parts) > 2 {
		if token := strings.TrimSpace(parts[2]); token != "" {
			lag, err := strconv.Atoi(token)
			if err != nil {
				problems = append(problems, fmt.Sprintf("unparsable lag %q, using 0", token))
			} else {
				e.LagDays = lag
			}
		}
	}
	return e, problems
}
