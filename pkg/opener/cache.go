// Package opener implements the disk-backed opener-phrase cache: a small
// fixed set of reply-opener phrases, pre-synthesised to raw audio at
// startup so they can be emitted with near-zero latency. One file per
// phrase under the cache directory, eager load-or-generate at startup,
// longest-normalised-prefix lookup thereafter.
package opener

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Synthesizer is the narrow capability the cache needs from a TTS provider
// at startup. Accepting this instead of the full orchestrator.TTSProvider
// interface keeps this package free of a dependency on pkg/orchestrator.
type Synthesizer func(ctx context.Context, text string) ([]byte, error)

type entry struct {
	key        string
	text       string
	normalised string
}

// Cache is read-only after Load returns.
type Cache struct {
	dir     string
	phrases map[string]string // key -> canonical phrase text
	entries []entry           // sorted by normalised length, longest first
	audio   map[string][]byte // key -> pcm bytes
}

// New constructs a cache for the given phrase set (key -> canonical text).
func New(dir string, phrases map[string]string) *Cache {
	entries := make([]entry, 0, len(phrases))
	for key, text := range phrases {
		entries = append(entries, entry{key: key, text: text, normalised: normalise(text)})
	}
	sort.Slice(entries, func(i, j int) bool {
		return len(entries[i].normalised) > len(entries[j].normalised)
	})
	return &Cache{
		dir:     dir,
		phrases: phrases,
		entries: entries,
		audio:   make(map[string][]byte, len(phrases)),
	}
}

func normalise(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Load populates the in-memory cache from disk, synthesising (and then
// persisting) whatever is missing. Returns the number of phrases
// successfully cached.
func (c *Cache) Load(ctx context.Context, synth Synthesizer, onEvent func(key string, cached bool, bytes int, err error)) (int, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return 0, fmt.Errorf("opener cache: create dir: %w", err)
	}

	count := 0
	for _, e := range c.entries {
		if pcm, ok := c.loadFromDisk(e.key); ok {
			c.audio[e.key] = pcm
			count++
			if onEvent != nil {
				onEvent(e.key, true, len(pcm), nil)
			}
			continue
		}

		pcm, err := synth(ctx, e.text)
		if err != nil || len(pcm) == 0 {
			if onEvent != nil {
				onEvent(e.key, false, 0, err)
			}
			continue
		}
		c.audio[e.key] = pcm
		count++
		if saveErr := c.saveToDisk(e.key, pcm); saveErr != nil && onEvent != nil {
			onEvent(e.key, false, len(pcm), saveErr)
		} else if onEvent != nil {
			onEvent(e.key, false, len(pcm), nil)
		}
	}
	return count, nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".pcm")
}

func (c *Cache) loadFromDisk(key string) ([]byte, bool) {
	info, err := os.Stat(c.path(key))
	if err != nil || info.Size() == 0 {
		return nil, false
	}
	b, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *Cache) saveToDisk(key string, pcm []byte) error {
	return os.WriteFile(c.path(key), pcm, 0o644)
}

// Lookup matches a spoken-response string, case-insensitive-and-whitespace
// normalised, against the cached phrases and returns the longest one that
// is a prefix of it, together with the un-consumed suffix. No match
// returns ok=false.
func (c *Cache) Lookup(spoken string) (matchedText string, audio []byte, remainder string, ok bool) {
	if spoken == "" {
		return "", nil, "", false
	}
	lower := normalise(spoken)
	for _, e := range c.entries {
		if strings.HasPrefix(lower, e.normalised) {
			pcm, have := c.audio[e.key]
			if !have {
				continue
			}
			// Map the match length in the normalised string back onto the
			// original string by trimming the same number of leading
			// whitespace-collapsed words.
			remainder = trimMatchedPrefix(spoken, e.normalised)
			return e.text, pcm, remainder, true
		}
	}
	return "", nil, "", false
}

// trimMatchedPrefix removes the first len(normalisedPrefix split by word)
// words from the original (un-normalised) string and returns the rest,
// trimmed.
func trimMatchedPrefix(original, normalisedPrefix string) string {
	words := strings.Fields(normalisedPrefix)
	rest := original
	for range words {
		rest = strings.TrimSpace(rest)
		sp := strings.IndexFunc(rest, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' })
		if sp < 0 {
			return ""
		}
		rest = rest[sp+1:]
	}
	return strings.TrimSpace(rest)
}

// Count returns how many phrases are currently cached in memory.
func (c *Cache) Count() int {
	return len(c.audio)
}
