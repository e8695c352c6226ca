package fileprovider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"
)

// pollToken fires once: Done is closed the first time the fingerprint of the
// matching file set diverges from the one captured at Watch time.
type pollToken struct {
	pattern string
	fp      string
	fired   atomic.Bool
	done    chan struct{}
}

func (t *pollToken) HasChanged() bool      { return t.fired.Load() }
func (t *pollToken) Done() <-chan struct{} { return t.done }

// Watch arms a change token for files matching filter, a doublestar glob over
// site paths ("/static/**", "static/css/*.css"). Malformed patterns and
// watches after Close return NullToken; watch never fails.
func (p *Physical) Watch(filter string) ChangeToken {
	pattern := normalizePattern(filter)
	if !isValidPattern(pattern) {
		p.logger.Warn(context.Background(), "invalid watch pattern, changes will not be reported",
			"pattern", filter)
		return NullToken
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return NullToken
	}

	t := &pollToken{pattern: pattern, fp: p.fingerprint(pattern), done: make(chan struct{})}
	p.tokens = append(p.tokens, t)

	if !p.loop {
		p.loop = true
		p.wg.Add(1)
		go p.pollLoop()
	}
	return t
}

// Close stops the poll loop and waits for it. Outstanding tokens never fire
// afterwards and later Watch calls return NullToken.
func (p *Physical) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.stop)
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *Physical) pollLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.pollOnce()
		}
	}
}

// pollOnce re-fingerprints every armed token, fires the ones whose matching
// set changed, and reports how many fired.
func (p *Physical) pollOnce() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	fired := 0
	kept := p.tokens[:0]
	for _, t := range p.tokens {
		if p.fingerprint(t.pattern) == t.fp {
			kept = append(kept, t)
			continue
		}
		t.fired.Store(true)
		close(t.done)
		fired++
	}
	p.tokens = kept
	return fired
}

// fingerprint hashes the names, sizes, and mtimes of the regular files under
// the root that match pattern. WalkDir's lexical order keeps it stable across
// runs; unreadable entries simply drop out.
func (p *Physical) fingerprint(pattern string) string {
	h := sha256.New()
	_ = filepath.WalkDir(p.root, func(fullPath string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.root, fullPath)
		if err != nil {
			return nil
		}
		name := filepath.ToSlash(rel)
		if !matchPattern(pattern, name) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		fmt.Fprintf(h, "%s\x00%d\x00%d\n", name, info.Size(), info.ModTime().UnixNano())
		return nil
	})
	return hex.EncodeToString(h.Sum(nil))
}

// normalizePattern makes patterns root-relative. A blank filter watches the
// whole tree.
func normalizePattern(filter string) string {
	f := strings.TrimPrefix(strings.TrimSpace(filter), "/")
	if f == "" {
		return "**"
	}
	return f
}

// OnChange invokes fn after every change reported for filter, re-arming the
// watch each time, until ctx is done. Providers without a change feed hand
// back NullToken, which simply parks the loop.
func OnChange(ctx context.Context, p Provider, filter string, fn func()) {
	go func() {
		for {
			tok := p.Watch(filter)
			select {
			case <-ctx.Done():
				return
			case <-tok.Done():
				fn()
			}
		}
	}()
}
