package credentials

import (
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// Pool is an immutable snapshot of the key to cookie mapping. A new Pool
// is published by every RotatePool; readers holding an old one keep a
// consistent view.
type Pool struct {
	entries map[string]*poolEntry
	builtAt time.Time
}

type poolEntry struct {
	cookies []string
	next    atomic.Uint64
}

// PoolStats summarizes a rotation.
type PoolStats struct {
	Keys    int // keys with at least one usable cookie
	Cookies int // usable cookies across all keys
	Dropped int // cookies excluded because they are marked invalid
	Emptied int // keys removed because every cookie was excluded
}

func newPool(source map[string][]string, invalid map[string]struct{}, now time.Time) (*Pool, PoolStats) {
	p := &Pool{
		entries: make(map[string]*poolEntry, len(source)),
		builtAt: now,
	}
	var stats PoolStats

	for key, cookies := range source {
		var usable []string
		for _, c := range cookies {
			c = strings.TrimSpace(c)
			if c == "" {
				continue
			}
			if isInvalid(invalid, c) {
				stats.Dropped++
				continue
			}
			usable = append(usable, c)
		}
		if len(usable) == 0 {
			if len(cookies) > 0 {
				stats.Emptied++
			}
			continue
		}
		p.entries[key] = &poolEntry{cookies: usable}
		stats.Keys++
		stats.Cookies += len(usable)
	}

	return p, stats
}

// isInvalid matches both the stored cookie and its bearer part, since the
// invalid file may hold either form.
func isInvalid(invalid map[string]struct{}, cookie string) bool {
	if _, ok := invalid[cookie]; ok {
		return true
	}
	_, ok := invalid[SplitCookie(cookie)]
	return ok
}

// lookup returns the entry for key.
func (p *Pool) lookup(key string) (*poolEntry, bool) {
	if p == nil {
		return nil, false
	}
	e, ok := p.entries[key]
	return e, ok
}

// pick returns the next cookie in round robin order.
func (e *poolEntry) pick() string {
	n := e.next.Add(1) - 1
	return e.cookies[n%uint64(len(e.cookies))]
}

// Has reports whether key is present.
func (p *Pool) Has(key string) bool {
	_, ok := p.lookup(key)
	return ok
}

// Cookies returns the usable cookies for key in configured order.
func (p *Pool) Cookies(key string) []string {
	e, ok := p.lookup(key)
	if !ok {
		return nil
	}
	return append([]string(nil), e.cookies...)
}

// Keys returns the pooled API keys, sorted.
func (p *Pool) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of pooled keys.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.entries)
}

// BuiltAt returns when the snapshot was built.
func (p *Pool) BuiltAt() time.Time {
	if p == nil {
		return time.Time{}
	}
	return p.builtAt
}

// Separators used by compound cookies, URL-encoded form first.
var cookieSeparators = []string{url.QueryEscape("::"), "::"}

// SplitCookie returns the bearer part of a compound cookie: the text after
// the first "%3A%3A" or, failing that, the first "::". Plain cookies are
// returned unchanged. The result is trimmed.
func SplitCookie(cookie string) string {
	for _, sep := range cookieSeparators {
		if _, after, ok := strings.Cut(cookie, sep); ok {
			return strings.TrimSpace(after)
		}
	}
	return strings.TrimSpace(cookie)
}
