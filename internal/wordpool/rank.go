package wordpool

// RankForNewTerm returns the 1-based rank a word absent from displayed
// should be inserted at, searching displayed[low..high]. displayed must be
// sorted.
//
// The edge policy is kept exactly for compatibility with existing wordpool
// files: an inverted range yields high+2, text at or before displayed[low]
// yields low+1, text equal to displayed[high] yields high+1 and text after
// it yields high+2. Otherwise the search recurses on the half that excludes
// the midpoint and both bounds already tested.
//
// The result is a position in the displayed list, not a line number of the
// wordpool file. The two agree only when the file is sorted and nothing is
// hidden.
func RankForNewTerm(displayed []string, text string, low, high int) int {
	if low > high {
		return high + 2
	}

	if text <= displayed[low] {
		return low + 1
	}
	switch end := displayed[high]; {
	case text == end:
		return high + 1
	case text > end:
		return high + 2
	}

	mid := (low + high) / 2
	switch midText := displayed[mid]; {
	case text == midText:
		return mid + 1
	case text < midText:
		return RankForNewTerm(displayed, text, low+1, mid-1)
	default:
		return RankForNewTerm(displayed, text, mid+1, high-1)
	}
}
