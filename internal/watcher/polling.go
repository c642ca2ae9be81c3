package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"
)

type snapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// poller detects changes by walking the tree every interval.
type poller struct {
	w        *Watcher
	interval time.Duration
	state    map[string]snapshot
}

func newPoller(w *Watcher, interval time.Duration) *poller {
	return &poller{w: w, interval: interval}
}

func (p *poller) run(ctx context.Context) error {
	p.state = p.walk()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.w.stopCh:
			return nil
		case <-ticker.C:
			p.detect()
		}
	}
}

func (p *poller) walk() map[string]snapshot {
	out := make(map[string]snapshot)
	_ = filepath.WalkDir(p.w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(p.w.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() && !p.w.filter.AcceptDir(rel) {
			return filepath.SkipDir
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[rel] = snapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return out
}

func (p *poller) detect() {
	current := p.walk()
	now := time.Now()
	for rel, s := range current {
		prev, ok := p.state[rel]
		switch {
		case !ok:
			p.w.handle(FileEvent{Path: rel, Operation: OpCreate, IsDir: s.isDir, Timestamp: now})
		case !s.isDir && (!prev.modTime.Equal(s.modTime) || prev.size != s.size):
			p.w.handle(FileEvent{Path: rel, Operation: OpModify, Timestamp: now})
		}
	}
	for rel, s := range p.state {
		if _, ok := current[rel]; !ok {
			p.w.handle(FileEvent{Path: rel, Operation: OpDelete, IsDir: s.isDir, Timestamp: now})
		}
	}
	p.state = current
}
