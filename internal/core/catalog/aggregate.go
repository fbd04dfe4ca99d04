package catalog

// Aggregate concatenates per-provider offering lists into one catalog.
// No deduplication is performed: offerings from different providers are
// never considered equivalent. A provider that failed to fetch simply
// contributes an empty (or nil) list.
func Aggregate(results ...[]Offering) []Offering {
	var total int
	for _, r := range results {
		total += len(r)
	}
	merged := make([]Offering, 0, total)
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged
}
