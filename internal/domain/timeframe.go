package domain

import "sort"

// timeframeRank orders the standard chart timeframe labels from shortest
// to longest. Labels outside this table sort after known ones, lexically.
var timeframeRank = map[string]int{
	"1m":  0,
	"3m":  1,
	"5m":  2,
	"15m": 3,
	"30m": 4,
	"1h":  5,
	"2h":  6,
	"4h":  7,
	"6h":  8,
	"12h": 9,
	"1d":  10,
	"3d":  11,
	"1w":  12,
	"1M":  13,
}

// SortTimeframes sorts timeframe labels in place into canonical order:
// known labels shortest-first, unknown labels after them in lexical order.
// This ordering is the documented tie-break everywhere "first-seen order"
// would otherwise depend on map iteration.
func SortTimeframes(labels []string) {
	sort.SliceStable(labels, func(i, j int) bool {
		ri, iKnown := timeframeRank[labels[i]]
		rj, jKnown := timeframeRank[labels[j]]
		switch {
		case iKnown && jKnown:
			return ri < rj
		case iKnown:
			return true
		case jKnown:
			return false
		default:
			return labels[i] < labels[j]
		}
	})
}
