package store

import (
	"regexp"
	"sort"
	"strings"

	"go-voicechat/internal/chat"
)

var wordRegex = regexp.MustCompile(`\w+`)

// minTokenLen drops single characters from the search index.
const minTokenLen = 2

// tokenize lower-cases s and returns its distinct word tokens.
func tokenize(s string) []string {
	words := wordRegex.FindAllString(strings.ToLower(s), -1)
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) < minTokenLen || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func sortByDateSent(msgs []chat.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].DateSent.Equal(msgs[j].DateSent) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].DateSent.Before(msgs[j].DateSent)
	})
}
