package collector

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
)

const gitignoreCacheSize = 1000

// ignoreRule is one .gitignore line translated to doublestar globs over
// slash-separated paths relative to the collector root.
type ignoreRule struct {
	glob    string
	negate  bool
	dirOnly bool
}

func (r ignoreRule) match(rel string, isDir bool) bool {
	if ok, _ := doublestar.Match(r.glob+"/**", rel); ok {
		return true
	}
	if r.dirOnly && !isDir {
		return false
	}
	ok, _ := doublestar.Match(r.glob, rel)
	return ok
}

// gitignore evaluates the .gitignore files between the root and a path.
// Parsed files are cached per directory.
type gitignore struct {
	root  string
	cache *lru.Cache[string, []ignoreRule]
}

func newGitignore(root string) *gitignore {
	cache, _ := lru.New[string, []ignoreRule](gitignoreCacheSize)
	return &gitignore{root: root, cache: cache}
}

// ignored reports whether rel is excluded. Later rules win, and rules in
// deeper directories come after shallower ones.
func (g *gitignore) ignored(rel string, isDir bool) bool {
	ignored := false
	dirs := []string{""}
	if d := path.Dir(rel); d != "." {
		parts := strings.Split(d, "/")
		for i := range parts {
			dirs = append(dirs, strings.Join(parts[:i+1], "/"))
		}
	}
	for _, dir := range dirs {
		for _, r := range g.rules(dir) {
			if r.match(rel, isDir) {
				ignored = !r.negate
			}
		}
	}
	return ignored
}

func (g *gitignore) rules(dir string) []ignoreRule {
	if rules, ok := g.cache.Get(dir); ok {
		return rules
	}
	rules := parseGitignore(filepath.Join(g.root, filepath.FromSlash(dir), ".gitignore"), dir)
	g.cache.Add(dir, rules)
	return rules
}

func parseGitignore(file, base string) []ignoreRule {
	f, err := os.Open(file)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var rules []ignoreRule
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if r, ok := parseIgnoreLine(sc.Text(), base); ok {
			rules = append(rules, r)
		}
	}
	return rules
}

func parseIgnoreLine(line, base string) (ignoreRule, bool) {
	line = strings.TrimRight(line, " \t\r")
	if line == "" || strings.HasPrefix(line, "#") {
		return ignoreRule{}, false
	}

	var r ignoreRule
	if strings.HasPrefix(line, "!") {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}
	if line == "" {
		return ignoreRule{}, false
	}

	// A slash anywhere but the end anchors the pattern to base.
	anchored := strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")

	var glob string
	switch {
	case anchored || strings.HasPrefix(line, "**"):
		glob = line
	default:
		glob = "**/" + line
	}
	if base != "" {
		glob = base + "/" + glob
	}
	r.glob = glob
	return r, true
}
