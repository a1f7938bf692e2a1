package chat

import (
	"strings"
	"time"

	"github.com/partshub/runtime/infrastructure/cache"
)

// prohibitedWordsKey is the cache key an admin tool populates with the
// tenant's blocked-word list; chat enforcement just reads it.
const prohibitedWordsKey = "chat:prohibited_words"

// wordFilter censors configured prohibited words out of message bodies
// before they are persisted or broadcast.
type wordFilter struct {
	cache *cache.Cache
}

func newWordFilter(c *cache.Cache) *wordFilter {
	return &wordFilter{cache: c}
}

func (f *wordFilter) clean(content string) string {
	if f.cache == nil {
		return content
	}
	raw, ok := f.cache.Get(prohibitedWordsKey)
	if !ok {
		return content
	}
	words, ok := raw.([]string)
	if !ok || len(words) == 0 {
		return content
	}

	filtered := content
	for _, word := range words {
		if word == "" {
			continue
		}
		filtered = strings.ReplaceAll(filtered, word, strings.Repeat("*", len(word)))
	}
	return filtered
}

// SetProhibitedWords stores the blocked-word list for the filter to read.
// Exposed for the admin surface that manages tenant moderation settings.
func SetProhibitedWords(c *cache.Cache, words []string, ttl time.Duration) {
	if c == nil {
		return
	}
	c.Set(prohibitedWordsKey, words, ttl)
}
