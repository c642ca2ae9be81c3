package scanner

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"regexp"
	"strings"
)

// IgnoreFiles are read in every directory when gitignore support is on.
var IgnoreFiles = []string{".gitignore", ".mcbignore"}

// controlFiles configure tooling rather than hold project content, so they
// are never returned by a scan.
var controlFiles = map[string]bool{
	".gitignore":     true,
	".mcbignore":     true,
	".gitattributes": true,
	".gitmodules":    true,
	".gitkeep":       true,
	".dockerignore":  true,
	".npmignore":     true,
	".keep":          true,
}

// Matcher evaluates gitignore-syntax rules. The last matching rule wins, so
// a later "!pattern" re-includes a path an earlier rule ignored.
type Matcher struct {
	rules []ignoreRule
}

type ignoreRule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
	base     string // slash path of the directory holding the rule, "" = root
}

// NewMatcher compiles patterns that apply from the root.
func NewMatcher(patterns ...string) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		m.Add(p, "")
	}
	return m
}

// Add compiles one gitignore line scoped to base. Blank lines and comments
// are ignored.
func (m *Matcher) Add(line, base string) {
	escapedSpace := strings.HasSuffix(line, `\ `)
	p := strings.TrimSpace(line)
	if p == "" || strings.HasPrefix(p, "#") {
		return
	}
	r := ignoreRule{base: strings.Trim(base, "/")}
	switch {
	case strings.HasPrefix(p, `\#`), strings.HasPrefix(p, `\!`):
		p = p[1:]
	case strings.HasPrefix(p, "!"):
		r.negate = true
		p = p[1:]
	}
	if escapedSpace && strings.HasSuffix(p, `\`) {
		p = strings.TrimSuffix(p, `\`) + " "
	}
	if strings.HasSuffix(p, "/") {
		r.dirOnly = true
		p = strings.TrimSuffix(p, "/")
	}
	if strings.HasPrefix(p, "/") {
		r.anchored = true
		p = strings.TrimPrefix(p, "/")
	}
	// "doc/frotz" is relative to the .gitignore directory, like "/doc/frotz".
	if strings.Contains(p, "/") && !strings.HasPrefix(p, "**/") {
		r.anchored = true
	}
	if p == "" {
		return
	}
	r.re = regexp.MustCompile("^" + globToRegexp(p) + "$")
	m.rules = append(m.rules, r)
}

// AddFile reads rules from an ignore file in directory base.
func (m *Matcher) AddFile(file, base string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.Add(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to read ignore file %s: %w", file, err)
	}
	return nil
}

// Len is the number of compiled rules.
func (m *Matcher) Len() int { return len(m.rules) }

// Match reports whether the slash-separated relative path is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	hit, negated := m.decide(rel, isDir)
	return hit && !negated
}

// decide returns whether any rule matched and whether the last matching
// rule was a negation.
func (m *Matcher) decide(rel string, isDir bool) (hit, negated bool) {
	for _, r := range m.rules {
		if r.match(rel, isDir) {
			hit, negated = true, r.negate
		}
	}
	return hit, negated
}

func (r ignoreRule) match(rel string, isDir bool) bool {
	if r.base != "" {
		if rel == r.base {
			return false
		}
		if !strings.HasPrefix(rel, r.base+"/") {
			return false
		}
		rel = rel[len(r.base)+1:]
	}
	parts := strings.Split(rel, "/")

	if r.anchored {
		if r.re.MatchString(rel) {
			return !r.dirOnly || isDir
		}
		// A matched directory covers everything below it.
		for i := 1; i < len(parts); i++ {
			if r.re.MatchString(strings.Join(parts[:i], "/")) {
				return true
			}
		}
		return false
	}

	for i, part := range parts {
		if !r.re.MatchString(part) {
			continue
		}
		last := i == len(parts)-1
		if !last || !r.dirOnly || isDir {
			return true
		}
	}
	return !r.dirOnly && r.re.MatchString(rel)
}

// globToRegexp translates gitignore glob syntax.
func globToRegexp(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); i++ {
		c := p[i]
		switch c {
		case '*':
			if i+1 < len(p) && p[i+1] == '*' {
				if i+2 < len(p) && p[i+2] == '/' {
					b.WriteString("(?:.*/)?")
					i += 2
					continue
				}
				if i == 0 || p[i-1] == '/' {
					b.WriteString(".*")
					i++
					continue
				}
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(p[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := p[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i += end + 1
		case '\\':
			if i+1 < len(p) {
				i++
				b.WriteString(regexp.QuoteMeta(string(p[i])))
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// matchGlob reports whether a single file name matches a shell glob.
func matchGlob(pattern, name string) bool {
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}
