// Package toon implements TOON (Token-Oriented Object Notation) encoding.
package toon

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/phobologic/cladeguess/internal/model"
)

var (
	needsQuoting = regexp.MustCompile(`[,:"\\{}\[\]]`)
	looksNumeric = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?$`)
	keywords     = map[string]struct{}{
		"true":  {},
		"false": {},
		"null":  {},
	}
)

// Encode converts a decision Summary into TOON format.
func Encode(sum *model.Summary) string {
	var parts []string

	parts = append(parts, fmt.Sprintf("dataset: %s", encodeValue(sum.Dataset)))
	parts = append(parts, fmt.Sprintf("strategy: %s", encodeValue(sum.Strategy)))
	parts = append(parts, fmt.Sprintf("species: %d", sum.Species))
	parts = append(parts, fmt.Sprintf("max: %d", sum.MaxGuesses))
	parts = append(parts, fmt.Sprintf("avg: %s", formatFloat(sum.AvgGuesses)))

	var decisionRows [][]string
	for i := range sum.Decisions {
		d := &sum.Decisions[i]
		decisionRows = append(decisionRows, []string{
			strconv.Itoa(d.Depth),
			d.Subject,
			d.Guess,
			strconv.Itoa(d.Max),
			formatFloat(d.Avg),
			strconv.Itoa(d.Count),
		})
	}
	parts = append(parts, formatTabular("decisions", []string{"depth", "subject", "guess", "max", "avg", "cnt"}, decisionRows))

	var speciesRows [][]string
	for i := range sum.Ranked {
		r := &sum.Ranked[i]
		speciesRows = append(speciesRows, []string{
			r.Label,
			r.Scientific,
			strconv.Itoa(r.Guesses),
		})
	}
	parts = append(parts, formatTabular("species", []string{"label", "scientific", "guesses"}, speciesRows))

	return strings.Join(parts, "\n")
}

// formatFloat renders averages with four significant digits, matching the
// text report.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 4, 64)
}

func formatTabular(name string, columns []string, rows [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s[%d]{%s}:", name, len(rows), strings.Join(columns, ","))
	for _, row := range rows {
		encoded := make([]string, len(row))
		for i, cell := range row {
			encoded[i] = encodeValue(cell)
		}
		fmt.Fprintf(&b, "\n  %s", strings.Join(encoded, ","))
	}
	return b.String()
}

func encodeValue(value string) string {
	if value == "" {
		return `""`
	}

	if value != strings.TrimSpace(value) {
		return quote(value)
	}

	if strings.ContainsAny(value, "\n\r\t") {
		return quote(value)
	}

	if _, ok := keywords[strings.ToLower(value)]; ok {
		return quote(value)
	}

	if looksNumeric.MatchString(value) {
		return value
	}

	if needsQuoting.MatchString(value) {
		return quote(value)
	}

	if strings.HasPrefix(value, "-") {
		return quote(value)
	}

	return value
}

func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	escaped = strings.ReplaceAll(escaped, "\n", `\n`)
	escaped = strings.ReplaceAll(escaped, "\r", `\r`)
	escaped = strings.ReplaceAll(escaped, "\t", `\t`)
	return `"` + escaped + `"`
}
