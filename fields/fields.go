// Package fields maps the Part I box of a recap onto the nineteen canonical
// charter-party terms, and validates and normalises their values.
package fields

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/wudi/charterkit/charter"
)

// Labels holds the canonical label of each Part I slot, indexed by number.
var Labels = [charter.FieldCount + 1]string{
	1:  "Charter Party Form",
	2:  "Vessel Name",
	3:  "Flag / Class",
	4:  "Owners",
	5:  "Charterers",
	6:  "Brokers / Commission",
	7:  "Date & Place of Fixture",
	8:  "Laycan",
	9:  "Cargo Description",
	10: "Quantity",
	11: "Load Port(s)",
	12: "Discharge Port(s)",
	13: "Freight / Rate / Basis",
	14: "Payment Terms",
	15: "Laytime",
	16: "Demurrage / Despatch",
	17: "NOR / Notice / Time Counting",
	18: "Law & Arbitration",
	19: "Special Provisions",
}

// Required lists the slots that must carry a value.
var Required = []int{1, 2, 4, 5, 8, 9, 10, 11, 12, 13, 15}

var validators = map[int]*regexp.Regexp{
	1: regexp.MustCompile(`(?i)^(VOY\d+|BALTIME|NYPE|GENCON).*`),
	2: regexp.MustCompile(`(?i)^(MV|MS|MT|SS)\s+\w+`),
	3: regexp.MustCompile(`(?i)^\w+\s*/\s*\w+`),
}

// Label returns the canonical label for slot n, or "" outside 1..19.
func Label(n int) string {
	if n < 1 || n > charter.FieldCount {
		return ""
	}
	return Labels[n]
}

// Mapped is a Part I slot with its canonical label. OriginalLabel is the
// label as printed in the recap, empty when the recap lacks the slot.
type Mapped struct {
	Number        int    `json:"number"`
	Label         string `json:"label"`
	Value         string `json:"value"`
	OriginalLabel string `json:"original_label,omitempty"`
}

// Set holds mapped slots by number.
type Set map[int]Mapped

// Extract maps every slot from the recap's Part I. Slots absent from the
// recap are present with an empty value.
func Extract(doc *charter.Document) Set {
	set := make(Set, charter.FieldCount)
	for n := 1; n <= charter.FieldCount; n++ {
		m := Mapped{Number: n, Label: Labels[n]}
		if doc != nil {
			if f, ok := doc.PartI[n]; ok {
				m.Value = f.Value
				m.OriginalLabel = f.Label
			}
		}
		set[n] = m
	}
	return set
}

// Ordered returns the slots sorted by number.
func (s Set) Ordered() []Mapped {
	out := make([]Mapped, 0, len(s))
	for _, m := range s {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Clone copies the set.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Validate checks required slots and value formats. A format error replaces
// a required error for the same slot.
func Validate(set Set) (bool, map[int]string) {
	errs := make(map[int]string)
	for _, n := range Required {
		if m, ok := set[n]; !ok || strings.TrimSpace(m.Value) == "" {
			errs[n] = fmt.Sprintf("Field %d (%s) is required", n, Labels[n])
		}
	}
	for n := 1; n <= charter.FieldCount; n++ {
		re, ok := validators[n]
		if !ok {
			continue
		}
		if m, ok := set[n]; ok && m.Value != "" && !re.MatchString(m.Value) {
			errs[n] = fmt.Sprintf("Field %d format invalid: %s", n, m.Value)
		}
	}
	return len(errs) == 0, errs
}

// Errors returns validation messages ordered by slot.
func Errors(errs map[int]string) []string {
	keys := make([]int, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = errs[k]
	}
	return out
}

var quantityUnit = regexp.MustCompile(`(?i)(MT|tonnes|TEU)`)

// Normalize tidies a value for slot n: quantities gain an " MT" unit when
// they name none, freight dollar signs become "USD " and laytime terms are
// upper-cased with SHEC corrected to SHEX.
func Normalize(n int, value string) string {
	if value == "" {
		return value
	}
	switch n {
	case 10:
		if !quantityUnit.MatchString(value) {
			value += " MT"
		}
	case 13:
		value = strings.ReplaceAll(value, "$", "USD ")
	case 15:
		value = strings.ReplaceAll(strings.ToUpper(value), "SHEC", "SHEX")
	}
	return strings.TrimSpace(value)
}

// NormalizeAll returns a copy of set with every value normalised.
func NormalizeAll(set Set) Set {
	out := set.Clone()
	for n, m := range out {
		m.Value = Normalize(n, m.Value)
		out[n] = m
	}
	return out
}

// Stats summarises how complete a set is.
type Stats struct {
	Total                int     `json:"total_fields"`
	Filled               int     `json:"filled_fields"`
	Empty                int     `json:"empty_fields"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

// Statistics counts labelled and filled slots.
func Statistics(set Set) Stats {
	var st Stats
	for _, m := range set {
		if m.Label != "" {
			st.Total++
		}
		if m.Value != "" {
			st.Filled++
		}
	}
	st.Empty = st.Total - st.Filled
	if st.Total > 0 {
		st.CompletionPercentage = float64(st.Filled) / float64(st.Total) * 100
	}
	return st
}

// ApplyOverrides returns a copy of set with manual values applied. Numbers
// outside 1..19 are rejected.
func ApplyOverrides(set Set, overrides map[int]string) (Set, error) {
	out := set.Clone()
	for n, v := range overrides {
		if Label(n) == "" {
			return nil, fmt.Errorf("fields: no Part I field %d", n)
		}
		m, ok := out[n]
		if !ok {
			m = Mapped{Number: n, Label: Labels[n]}
		}
		m.Value = strings.TrimSpace(v)
		out[n] = m
	}
	return out, nil
}

// ParseOverride reads an "N=value" assignment.
func ParseOverride(s string) (int, string, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok {
		return 0, "", fmt.Errorf("fields: override %q is not N=value", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(k))
	if err != nil || Label(n) == "" {
		return 0, "", fmt.Errorf("fields: override %q names no Part I field", s)
	}
	return n, v, nil
}
