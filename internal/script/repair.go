package script

import "strings"

// Repair applies heuristic structural fixes: brace-count reconciliation and
// per-line closing of unterminated quotes. It is a text transform, not a
// parser; the output is only more likely to be valid than the input.
func Repair(src string) (string, bool) {
	out := reconcileBraces(src)
	out = closeQuotes(out)
	return out, out != src
}

func reconcileBraces(src string) string {
	open, closed := strings.Count(src, "{"), strings.Count(src, "}")
	switch {
	case closed > open:
		excess := closed - open
		trimmed := strings.TrimRight(src, " \t\r\n")
		for excess > 0 && strings.HasSuffix(trimmed, "}") {
			trimmed = strings.TrimRight(trimmed[:len(trimmed)-1], " \t\r\n")
			excess--
		}
		return trimmed + "\n"
	case open > closed:
		out := strings.TrimRight(src, " \t\r\n") + "\n"
		return out + strings.Repeat("}\n", open-closed)
	default:
		return src
	}
}

func closeQuotes(src string) string {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		if strings.Contains(line, "//") {
			continue
		}
		for _, q := range []string{"'", `"`} {
			if strings.Count(line, q)%2 == 0 {
				continue
			}
			trimmed := strings.TrimRight(line, " \t\r")
			if strings.HasSuffix(trimmed, ";") {
				line = trimmed[:len(trimmed)-1] + q + ";"
			} else {
				line = trimmed + q
			}
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}
