// Package placement lints where files live in the repository. It is meant to
// run as a pre-commit hook over the staged paths.
package placement

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Violation is one misplaced or malformed file.
type Violation struct {
	Path    string
	Message string
}

func (v Violation) String() string { return v.Path + ": " + v.Message }

type rule struct {
	message string
	pattern *regexp.Regexp
}

var (
	workflowRule = rule{
		"Workflow files must be placed in .github/workflows/*.yml",
		regexp.MustCompile(`^\.github/workflows/[^/]+\.yml$`),
	}
	schemaRule = rule{
		"JSON policy/schema files must be placed in schemas/*.json or policies/*.json",
		regexp.MustCompile(`^(schemas|policies)/[^/]+\.json$`),
	}
	docRule = rule{
		"Docs files must be placed in docs/*.md or be a top-level README.md-style file",
		regexp.MustCompile(`^(docs/[^/]+\.md|[A-Z][A-Z_]*\.md)$`),
	}
	scriptRule = rule{
		"Scripts must be placed in scripts/*",
		regexp.MustCompile(`^scripts/.+`),
	}
	goRule = rule{
		"Go sources must be placed under cmd/, pkg/ or internal/",
		regexp.MustCompile(`^(cmd|pkg|internal)/.+\.go$`),
	}
	pythonRule = rule{
		"Python must be under scripts/*.py",
		regexp.MustCompile(`^scripts/[^/]+\.py$`),
	}
)

var byExtension = map[string]rule{
	".yml":  workflowRule,
	".yaml": workflowRule,
	".json": schemaRule,
	".md":   docRule,
	".ps1":  scriptRule,
	".sh":   scriptRule,
	".go":   goRule,
	".py":   pythonRule,
}

// rootConfigs are tool configuration files allowed at the repository root
// regardless of extension.
var rootConfigs = map[string]struct{}{
	".pre-commit-config.yaml": {},
	".golangci.yml":           {},
	".golangci.yaml":          {},
	".goreleaser.yaml":        {},
}

// pastePatterns catch CI YAML or chat instructions pasted into docs and
// scripts.
var pastePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*on:\s*$`),
	regexp.MustCompile(`(?im)^\s*jobs:\s*$`),
	regexp.MustCompile("(?i)```(?:yaml|yml|toml|json|markdown)\\b"),
	regexp.MustCompile(`(?i)Here'?s what to paste`),
}

var contentChecked = map[string]bool{".ps1": true, ".md": true}

// Check lints every existing regular file in paths. Missing paths and
// directories are skipped. Paths are matched as given, relative to the
// repository root.
func Check(paths []string) ([]Violation, error) {
	var out []Violation
	for _, p := range paths {
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("placement: stat %s: %w", p, err)
		}
		if info.IsDir() {
			continue
		}

		rel := normalize(p)
		out = append(out, checkPath(rel)...)
		vs, err := checkContent(p, rel)
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
	}
	return out, nil
}

func normalize(p string) string {
	return strings.TrimPrefix(path.Clean(filepath.ToSlash(p)), "./")
}

func checkPath(rel string) []Violation {
	if _, ok := rootConfigs[rel]; ok {
		return nil
	}
	r, ok := byExtension[strings.ToLower(path.Ext(rel))]
	if !ok || r.pattern.MatchString(rel) {
		return nil
	}
	return []Violation{{Path: rel, Message: r.message}}
}

func checkContent(p, rel string) ([]Violation, error) {
	if !contentChecked[strings.ToLower(path.Ext(rel))] {
		return nil, nil
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("placement: read %s: %w", p, err)
	}
	if !utf8.Valid(data) {
		return nil, nil
	}

	var out []Violation
	for _, pat := range pastePatterns {
		if pat.Match(data) {
			out = append(out, Violation{
				Path:    rel,
				Message: fmt.Sprintf("contains blocked paste pattern '%s'", pat.String()),
			})
		}
	}
	return out, nil
}

// Sort orders violations by path, then message.
func Sort(vs []Violation) {
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].Path != vs[j].Path {
			return vs[i].Path < vs[j].Path
		}
		return vs[i].Message < vs[j].Message
	})
}
