// rewrite.go — the checkpoint sentinel rewriter.
//
// Authors mark pause points in evaluation scripts with line comments:
//
//	// @checkpoint
//	// @checkpoint a
//	// @checkpoint a->total i->idx->i
//
// RewriteCheckpoints replaces each sentinel line with an explicit call to the
// reserved checkpoint function, preserving the line count and the line's
// indentation so that the byte spans of the rewritten program remain
// meaningful against the displayed source. It is a pure text-to-text
// transform with no knowledge of the interpreter.
package debug

import (
	"regexp"
	"strconv"
	"strings"
)

// CheckpointFuncName is the reserved guest function sentinels are rewritten
// to. Guest code should not bind this name itself.
const CheckpointFuncName = "checkpoint"

var sentinelRe = regexp.MustCompile(`(?i)^(\s*)//\s*@checkpoint(.*)$`)

// Pair is one declared variable linkage: a guest-code local name, the
// external store identifier it mirrors to, and optionally a second local
// whose value indexes the checkpoint occurrence.
type Pair struct {
	Local      string
	External   string
	IndexLocal string
}

// RewriteCheckpoints rewrites every sentinel line in src into a checkpoint
// call. Lines that do not match the sentinel pattern are returned unaltered.
func RewriteCheckpoints(src string) string {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		m := sentinelRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		indent := m[1]
		rest := strings.TrimSpace(m[2])
		if rest == "" {
			lines[i] = indent + CheckpointFuncName + "();"
			continue
		}
		var pairs []string
		for _, tok := range strings.Fields(rest) {
			pairs = append(pairs, renderPair(parseSentinelToken(tok)))
		}
		lines[i] = indent + CheckpointFuncName + "([" + strings.Join(pairs, ", ") + "]);"
	}
	return strings.Join(lines, "\n")
}

// parseSentinelToken interprets one whitespace-separated sentinel token.
// Malformed tokens (empty segments, more than two arrows) degrade to a single
// pair using the raw token for both names.
func parseSentinelToken(tok string) Pair {
	parts := strings.Split(tok, "->")
	for _, p := range parts {
		if p == "" {
			return Pair{Local: tok, External: tok}
		}
	}
	switch len(parts) {
	case 1:
		return Pair{Local: parts[0], External: parts[0]}
	case 2:
		return Pair{Local: parts[0], External: parts[1]}
	case 3:
		return Pair{Local: parts[0], External: parts[1], IndexLocal: parts[2]}
	default:
		return Pair{Local: tok, External: tok}
	}
}

func renderPair(p Pair) string {
	elems := []string{strconv.Quote(p.Local), strconv.Quote(p.External)}
	if p.IndexLocal != "" {
		elems = append(elems, strconv.Quote(p.IndexLocal))
	}
	return "[" + strings.Join(elems, ", ") + "]"
}
