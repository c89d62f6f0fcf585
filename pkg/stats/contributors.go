package stats

import "sort"

// UnknownOrigin is the origin recorded when a contributor has no address key
const UnknownOrigin = "Unknown"

// ContributorRecord is one ranked entity of a contributor report
type ContributorRecord struct {
	Rank    int     `json:"rank"`
	Entity  string  `json:"entity"`
	Origin  string  `json:"origin"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

// ContributorReport is a top-N analysis of the entities behind an event
// total. When Error is set the totals are zero and Records is empty.
type ContributorReport struct {
	Total   int64               `json:"total"`
	Unique  int64               `json:"unique"`
	Records []ContributorRecord `json:"records"`
	Error   string              `json:"error,omitempty"`
}

// EmptyContributorReport returns a report with no events
func EmptyContributorReport() ContributorReport {
	return ContributorReport{Records: []ContributorRecord{}}
}

// FailedContributorReport returns the degraded form of a report whose
// source failed. It is never partially populated.
func FailedContributorReport(err error) ContributorReport {
	r := EmptyContributorReport()
	r.Error = err.Error()
	return r
}

// Failed reports whether the source behind r was unavailable
func (r ContributorReport) Failed() bool {
	return r.Error != ""
}

// ContributorEntry is an unranked contributor as returned by a backend
type ContributorEntry struct {
	Entity string
	Origin string
	Count  int64
}

// RankContributors orders entries by descending count, keeping source order
// for ties, assigns dense 1-based ranks and percentages of total, and keeps
// at most topN records. topN <= 0 keeps everything.
func RankContributors(entries []ContributorEntry, total int64, topN int) []ContributorRecord {
	sorted := make([]ContributorEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Count > sorted[j].Count
	})
	if topN > 0 && len(sorted) > topN {
		sorted = sorted[:topN]
	}

	records := make([]ContributorRecord, 0, len(sorted))
	for i, e := range sorted {
		origin := e.Origin
		if origin == "" {
			origin = UnknownOrigin
		}
		records = append(records, ContributorRecord{
			Rank:    i + 1,
			Entity:  e.Entity,
			Origin:  origin,
			Count:   e.Count,
			Percent: Percentage(e.Count, total),
		})
	}
	return records
}
