package indexer

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ignoreMatcher applies gitignore-style rules. Later rules win, and a
// negated rule (!) re-includes a previously ignored path. Rules loaded
// from a nested ignore file only apply under that file's directory.
type ignoreMatcher struct {
	rules []ignoreRule
}

type ignoreRule struct {
	regex    *regexp.Regexp
	negated  bool
	dirOnly  bool
	anchored bool
	base     string
}

func newIgnoreMatcher() *ignoreMatcher {
	return &ignoreMatcher{}
}

// AddFile loads rules from an ignore file scoped to base (the file's
// directory relative to the walk root, "" at the root).
func (m *ignoreMatcher) AddFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.Add(scanner.Text(), base)
	}
	return scanner.Err()
}

// Add compiles one pattern line. Blank lines and comments are ignored.
func (m *ignoreMatcher) Add(pattern, base string) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return
	}

	rule := ignoreRule{base: base}
	if strings.HasPrefix(pattern, "!") {
		rule.negated = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		rule.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		rule.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	} else if strings.Contains(pattern, "/") {
		// A pattern with an inner slash anchors at the base.
		rule.anchored = true
	}

	rule.regex = regexp.MustCompile("^" + globToRegex(pattern) + "$")
	m.rules = append(m.rules, rule)
}

// Ignored reports whether relPath (slash-separated, relative to the walk
// root) should be skipped.
func (m *ignoreMatcher) Ignored(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)
	ignored := false
	for _, r := range m.rules {
		if r.matches(relPath, isDir) {
			ignored = !r.negated
		}
	}
	return ignored
}

func (r *ignoreRule) matches(path string, isDir bool) bool {
	if r.base != "" {
		if !strings.HasPrefix(path, r.base+"/") {
			return false
		}
		path = strings.TrimPrefix(path, r.base+"/")
	}

	if r.anchored {
		if r.regex.MatchString(path) {
			return !r.dirOnly || isDir
		}
		if r.dirOnly {
			// Files under a matched directory are ignored with it.
			parts := strings.Split(path, "/")
			for i := 1; i < len(parts); i++ {
				if r.regex.MatchString(strings.Join(parts[:i], "/")) {
					return true
				}
			}
		}
		return false
	}

	parts := strings.Split(path, "/")
	for i, part := range parts {
		if !r.regex.MatchString(part) {
			continue
		}
		if i < len(parts)-1 {
			return true // a parent component matched
		}
		return !r.dirOnly || isDir
	}
	return r.regex.MatchString(path)
}

// globToRegex translates gitignore glob syntax: ** crosses directories,
// * and ? stop at separators.
func globToRegex(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); {
		switch c := pattern[i]; c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				b.WriteString("(?:.*/)?")
				i += 3
			} else if strings.HasPrefix(pattern[i:], "**") {
				b.WriteString(".*")
				i += 2
			} else {
				b.WriteString("[^/]*")
				i++
			}
		case '?':
			b.WriteString("[^/]")
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	return b.String()
}
