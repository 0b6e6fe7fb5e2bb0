// Package relevance scores how well a candidate string matches an
// abbreviation typed by the user, and marks up the matched characters.
//
// A match is the shortest span of the candidate containing every query
// character in order. Tightness of that span, the candidate's overall
// length and a few bonuses (word-start characters, a match at position 0)
// make up the score. Gap-free matches always land in [0.9, 1.0] and every
// other match stays below 0.9, so a contiguous hit can never be outranked by
// a scattered one.
package relevance

import (
	"strings"
	"unicode"
)

const (
	// PerfectFloor is the lowest score a gap-free match can get.
	PerfectFloor = 0.9

	lengthBase     = 0.7
	lengthWeight   = 0.3
	acronymWeight  = 1.0
	startWeight    = 0.25
	contiguousSpan = 0.09
)

// Span is a half-open rune range [Start, End) of a candidate.
type Span struct {
	Start int
	End   int
}

// Score returns the relevance of s for query, in [0, 1].
// The empty query matches everything with 1.0.
func Score(s, query string) float64 {
	if query == "" {
		return 1.0
	}
	ls := lowerRunes(s)
	lq := lowerRunes(query)
	if len(lq) > len(ls) {
		return 0
	}

	first, last, ok := bestMatch(ls, lq)
	if !ok {
		return 0
	}
	if equalRunes(ls, lq) {
		return 1.0
	}

	qlen := float64(len(lq))
	span := last - first
	score := qlen / float64(span)
	score *= lengthBase + lengthWeight*qlen/float64(len(ls))

	good := 0.0
	// Longer acronyms are worth disproportionately more.
	if acr := acronymCount(ls, lq, first); acr > 0 {
		frac := float64(acr) / qlen
		good += acronymWeight * frac * frac
	}
	if first == 0 {
		good += startWeight
	}
	score *= (1 + good) / (1 + acronymWeight + startWeight)

	if span == len(lq) {
		return PerfectFloor + contiguousSpan*score
	}
	// A gapped match has qlen/span < 1, so this stays below the floor.
	return PerfectFloor * score
}

// IsExact reports a whole-string, case-insensitive match.
func IsExact(s, query string) bool {
	return query != "" && equalRunes(lowerRunes(s), lowerRunes(query))
}

// Spans returns the rune ranges of s that the query matched, in order.
func Spans(s, query string) []Span {
	return spans(lowerRunes(s), lowerRunes(query), 0)
}

// Highlight wraps every matched run of s with mark.
func Highlight(s, query string, mark func(string) string) string {
	runes := []rune(s)
	var sb strings.Builder
	pos := 0
	for _, sp := range Spans(s, query) {
		sb.WriteString(string(runes[pos:sp.Start]))
		sb.WriteString(mark(string(runes[sp.Start:sp.End])))
		pos = sp.End
	}
	sb.WriteString(string(runes[pos:]))
	return sb.String()
}

// spans bolds the longest query prefix found at the start of the best
// match, then recurses on the rest of the string with the rest of the query.
func spans(ls, lq []rune, offset int) []Span {
	if len(lq) == 0 {
		return nil
	}
	first, _, ok := bestMatch(ls, lq)
	if !ok {
		return nil
	}
	n := len(lq)
	for ; n > 0; n-- {
		if first+n <= len(ls) && equalRunes(ls[first:first+n], lq[:n]) {
			break
		}
	}
	end := first + n
	out := []Span{{Start: offset + first, End: offset + end}}
	return append(out, spans(ls[end:], lq[n:], offset+end)...)
}

// bestMatch finds the shortest span of ls that contains lq as an ordered
// subsequence. last is exclusive.
func bestMatch(ls, lq []rune) (first, last int, ok bool) {
	if len(lq) == 0 {
		return 0, 0, true
	}
	lastChar := lastIndex(ls, lq[len(lq)-1])
	if lastChar < 0 {
		return 0, 0, false
	}

	bestLen := -1
	for i := 0; i <= lastChar; i++ {
		if ls[i] != lq[0] {
			continue
		}
		end, found := greedyEnd(ls, lq, i)
		if !found {
			// Later starts see fewer characters and cannot succeed either.
			break
		}
		if bestLen < 0 || end-i < bestLen {
			first, last, bestLen = i, end, end-i
			if bestLen == len(lq) {
				break
			}
		}
	}
	return first, last, bestLen >= 0
}

// greedyEnd matches lq forward from start and returns the exclusive end of
// the earliest completion.
func greedyEnd(ls, lq []rune, start int) (int, bool) {
	j := 0
	for i := start; i < len(ls); i++ {
		if ls[i] == lq[j] {
			j++
			if j == len(lq) {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// acronymCount counts greedily matched characters that start a word.
func acronymCount(ls, lq []rune, first int) int {
	count := 0
	j := 0
	for i := first; i < len(ls) && j < len(lq); i++ {
		if ls[i] != lq[j] {
			continue
		}
		if i == 0 || isWordBreak(ls[i-1]) {
			count++
		}
		j++
	}
	return count
}

func isWordBreak(r rune) bool {
	return r == ' ' || r == '-'
}

func lastIndex(rs []rune, r rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

func lowerRunes(s string) []rune {
	rs := []rune(s)
	for i, r := range rs {
		rs[i] = unicode.ToLower(r)
	}
	return rs
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
