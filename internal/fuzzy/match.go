// Package fuzzy ranks campaign names against a free-text search.
//
// Scores run from 0 to 100. An exact match, ignoring case and repeated
// whitespace, scores 100. Reordered words and substring hits are scaled
// down so they always rank below an exact match.
package fuzzy

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Cutoff is the score a match must exceed to be offered as an option.
const Cutoff = 45

const (
	tokenSortScale = 0.95
	partialScale   = 0.90
	partialMinLen  = 1.5
)

type Match struct {
	Candidate string `json:"candidate"`
	Score     int    `json:"score"`
	index     int
}

// Rank scores every candidate and returns the best limit of them, ties kept
// in candidate order. A limit <= 0 returns all candidates.
func Rank(query string, candidates []string, limit int) []Match {
	out := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		out = append(out, Match{Candidate: c, Score: Score(query, c), index: i})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].index < out[j].index
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Select is what a search box offers: an empty query passes every candidate
// through unranked, otherwise only ranked matches above Cutoff survive.
func Select(query string, candidates []string, limit int) []Match {
	if strings.TrimSpace(query) == "" {
		out := make([]Match, len(candidates))
		for i, c := range candidates {
			out[i] = Match{Candidate: c, index: i}
		}
		return out
	}
	ranked := Rank(query, candidates, limit)
	out := ranked[:0]
	for _, m := range ranked {
		if m.Score > Cutoff {
			out = append(out, m)
		}
	}
	return out
}

func Names(ms []Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Candidate
	}
	return out
}

func Score(query, candidate string) int {
	a, b := clean(query), clean(candidate)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 100
	}
	best := ratio(a, b)
	if ts := scale(ratio(sortTokens(a), sortTokens(b)), tokenSortScale); ts > best {
		best = ts
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if float64(max(la, lb))/float64(min(la, lb)) >= partialMinLen {
		if p := scale(partial(a, b), partialScale); p > best {
			best = p
		}
	}
	return best
}

func clean(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func sortTokens(s string) string {
	f := strings.Fields(s)
	sort.Strings(f)
	return strings.Join(f, " ")
}

func ratio(a, b string) int {
	n := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if n == 0 {
		return 100
	}
	d := levenshtein.ComputeDistance(a, b)
	return int(math.Round(100 * (1 - float64(d)/float64(n))))
}

// partial is the best ratio of the shorter string against every window of
// the same length in the longer one.
func partial(a, b string) int {
	short, long := []rune(a), []rune(b)
	if len(short) > len(long) {
		short, long = long, short
	}
	s := string(short)
	best := 0
	for i := 0; i+len(short) <= len(long); i++ {
		if r := ratio(s, string(long[i:i+len(short)])); r > best {
			best = r
			if best == 100 {
				break
			}
		}
	}
	return best
}

func scale(score int, f float64) int {
	return int(math.Round(float64(score) * f))
}
