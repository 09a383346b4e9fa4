package trigger

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/moonsidelab/lorabot/internal/content"
)

// nonWordRe strips everything that cannot be part of a keyword, so
// punctuation between characters does not defeat substring matching.
var nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}_]+`)

// normalize lowercases the text and removes non-word runes.
func normalize(s string) string {
	return strings.ToLower(nonWordRe.ReplaceAllString(s, ""))
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// bestMatch finds the entry whose keyword has the longest
// case-insensitive substring match in clean. Within one entry the
// keywords are tried longest first; across entries a strictly longer
// keyword wins, so equal-length matches keep the first entry found in
// declaration order.
func bestMatch(entries []content.Entry, clean string) (*content.Entry, string) {
	var best *content.Entry
	bestKW := ""
	bestLen := 0
	for i := range entries {
		kws := make([]string, len(entries[i].Keywords))
		copy(kws, entries[i].Keywords)
		sort.SliceStable(kws, func(a, b int) bool {
			return runeLen(kws[a]) > runeLen(kws[b])
		})
		for _, kw := range kws {
			if kw == "" {
				continue
			}
			if strings.Contains(clean, strings.ToLower(kw)) && runeLen(kw) > bestLen {
				best = &entries[i]
				bestKW = kw
				bestLen = runeLen(kw)
				break
			}
		}
	}
	return best, bestKW
}
