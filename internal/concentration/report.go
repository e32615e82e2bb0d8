package concentration

import (
	"sort"
	"strconv"
)

// IndexResult is one computed and classified index for one group.
type IndexResult struct {
	Group    string    `json:"group"`
	Index    IndexName `json:"index"`
	Window   int       `json:"window,omitempty"`
	Value    float64   `json:"value"`
	Category string    `json:"category,omitempty"`
}

// Label renders the index name, with the window for CR (CR4).
func (r IndexResult) Label() string {
	if r.Index == IndexCR {
		return "CR" + strconv.Itoa(r.Window)
	}
	return string(r.Index)
}

// GroupReport carries a group's results in index order.
type GroupReport struct {
	Group    string              `json:"group"`
	Entities int                 `json:"entities"`
	ShareSum float64             `json:"share_sum"`
	Results  []IndexResult       `json:"results"`
	Warning  *DataQualityWarning `json:"warning,omitempty"`
}

// Result returns the result for index (and window for CR).
func (g GroupReport) Result(index IndexName, window int) (IndexResult, bool) {
	for _, r := range g.Results {
		if r.Index == index && (index != IndexCR || r.Window == window) {
			return r, true
		}
	}
	return IndexResult{}, false
}

// Report is the terminal artifact of a run: groups in first-seen input order.
type Report struct {
	Profile  string        `json:"profile"`
	Scale    Scale         `json:"scale"`
	Groups   []GroupReport `json:"groups"`
	Warnings []Warning     `json:"warnings,omitempty"`
}

// Group looks up a group's report by key.
func (r *Report) Group(key string) (GroupReport, bool) {
	for _, g := range r.Groups {
		if g.Group == key {
			return g, true
		}
	}
	return GroupReport{}, false
}

var indexRank = map[IndexName]int{IndexCR: 0, IndexHHI: 1, IndexMOCDI: 2, IndexHI: 3}

// Assemble orders per-group results into a Report. groups fixes the group order;
// results are placed into their group's block ordered CR windows ascending, then
// HHI, MOCDI and HI. Results for unknown groups are dropped.
func Assemble(profile string, scale Scale, groups []Group, results []IndexResult, warnings []Warning) *Report {
	rep := &Report{Profile: profile, Scale: scale, Warnings: warnings}
	pos := make(map[string]int, len(groups))
	for _, g := range groups {
		pos[g.Key] = len(rep.Groups)
		rep.Groups = append(rep.Groups, GroupReport{
			Group:    g.Key,
			Entities: len(g.Records),
			ShareSum: g.Sum,
			Warning:  g.Warning,
		})
	}
	for _, r := range results {
		i, ok := pos[r.Group]
		if !ok {
			continue
		}
		rep.Groups[i].Results = append(rep.Groups[i].Results, r)
	}
	for i := range rep.Groups {
		rs := rep.Groups[i].Results
		sort.SliceStable(rs, func(a, b int) bool {
			if rs[a].Index != rs[b].Index {
				return indexRank[rs[a].Index] < indexRank[rs[b].Index]
			}
			return rs[a].Window < rs[b].Window
		})
	}
	return rep
}
