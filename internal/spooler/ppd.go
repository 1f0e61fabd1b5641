package spooler

import (
	"sort"
	"strings"
)

// PPDEverywhere is the driverless IPP Everywhere model, used when nothing better matches.
const PPDEverywhere = "everywhere"

// MatchPPD picks a driver for a manufacturer or model hint.
//
// Candidates are considered in name order and the first one whose
// make-and-model contains hint (case-insensitive) wins. An empty hint or no
// match yields PPDEverywhere.
func MatchPPD(ppds []PPD, hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return PPDEverywhere
	}

	sorted := make([]PPD, len(ppds))
	copy(sorted, ppds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for _, ppd := range sorted {
		if ppd.Name == "" {
			continue
		}
		if strings.Contains(strings.ToLower(ppd.MakeAndModel), hint) {
			return ppd.Name
		}
	}
	return PPDEverywhere
}
