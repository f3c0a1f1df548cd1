package subtitle

import (
	"sort"
	"strings"
	"unicode"

	"substream/subtitleservice/internal/domain"
)

const (
	defaultRankThreshold = 0.5

	// releaseName is the primary ranking field, comments secondary.
	releaseNameWeight = 1.0
	commentsWeight    = 0.6
)

// rankRecords scores records against the free-text query and returns them in
// descending score order. Matching is case-insensitive, substring-tolerant
// and edit-distance based; where a match sits inside a field does not change
// its score. Ties keep input order (stable sort) so identical inputs always
// produce identical output. Records scoring below the threshold are dropped.
// An empty query text disables ranking and passes records through unscored.
func rankRecords(records []domain.SubtitleRecord, queryText string, threshold float64) []domain.RankedRecord {
	query := normalizeText(queryText)
	ranked := make([]domain.RankedRecord, 0, len(records))
	if query == "" {
		for _, record := range records {
			ranked = append(ranked, domain.RankedRecord{Record: record})
		}
		return ranked
	}
	if threshold <= 0 {
		threshold = defaultRankThreshold
	}

	for _, record := range records {
		score := releaseNameWeight * fieldSimilarity(record.ReleaseName, query)
		if secondary := commentsWeight * fieldSimilarity(record.Comments, query); secondary > score {
			score = secondary
		}
		if score < threshold {
			continue
		}
		ranked = append(ranked, domain.RankedRecord{Record: record, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// fieldSimilarity returns a similarity in [0,1] between a record field and an
// already-normalized query.
func fieldSimilarity(field, query string) float64 {
	field = normalizeText(field)
	if field == "" {
		return 0
	}
	if field == query || strings.Contains(field, query) {
		return 1
	}

	fieldTokens := strings.Fields(field)
	queryTokens := strings.Fields(query)
	if len(fieldTokens) == 0 || len(queryTokens) == 0 {
		return 0
	}

	// Average, over query tokens, of the best per-token similarity anywhere
	// in the field. Every query token has to find some counterpart; a token
	// matching at the end of a long comment scores the same as at the start.
	total := 0.0
	for _, queryToken := range queryTokens {
		best := 0.0
		for _, fieldToken := range fieldTokens {
			if sim := tokenSimilarity(fieldToken, queryToken); sim > best {
				best = sim
			}
			if best == 1 {
				break
			}
		}
		total += best
	}
	return total / float64(len(queryTokens))
}

func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	longer := len(a)
	if len(b) > longer {
		longer = len(b)
	}
	return 1 - float64(levenshteinDistance(a, b))/float64(longer)
}

// normalizeText lowercases and strips punctuation, treating dots, dashes and
// underscores as separators since release names use them as such
// ("Shawshank.1994.1080p.BluRay").
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '.' || r == '-' || r == '_':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func levenshteinDistance(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	previous := make([]int, len(rb)+1)
	current := make([]int, len(rb)+1)
	for j := range previous {
		previous[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		current[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			current[j] = minInt(current[j-1]+1, previous[j]+1, previous[j-1]+cost)
		}
		previous, current = current, previous
	}
	return previous[len(rb)]
}

func minInt(values ...int) int {
	best := values[0]
	for _, v := range values[1:] {
		if v < best {
			best = v
		}
	}
	return best
}
