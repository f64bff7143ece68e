package placement

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFiles creates files relative to a fresh working directory.
func writeFiles(t *testing.T, files map[string]string) {
	t.Helper()
	t.Chdir(t.TempDir())
	for name, content := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
		require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
	}
}

func TestCheck_Placement(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		content string
		wantMsg string
	}{
		{"precommit config at root", ".pre-commit-config.yaml", "repos: []\n", ""},
		{"workflow", ".github/workflows/ci.yml", "name: ci\n", ""},
		{"yaml outside workflows", "random.yml", "name: nope\n", workflowRule.message},
		{"yaml with yaml extension in workflows", ".github/workflows/ci.yaml", "name: ci\n", workflowRule.message},
		{"schema json", "schemas/policy.json", "{}", ""},
		{"policy json", "policies/default.json", "{}", ""},
		{"json in wrong path", "oops.json", "{}", schemaRule.message},
		{"nested schema json", "schemas/v1/policy.json", "{}", schemaRule.message},
		{"readme", "README.md", "# fusionintel\n", ""},
		{"top-level design doc", "DESIGN.md", "# design\n", ""},
		{"docs", "docs/usage.md", "usage\n", ""},
		{"nested docs", "docs/a/usage.md", "usage\n", docRule.message},
		{"lowercase top-level doc", "notes.md", "notes\n", docRule.message},
		{"script", "scripts/install.sh", "echo hi\n", ""},
		{"shell outside scripts", "install.sh", "echo hi\n", scriptRule.message},
		{"go in pkg", "pkg/audit/event.go", "package audit\n", ""},
		{"go in cmd", "cmd/fusionintel/main.go", "package main\n", ""},
		{"go in internal", "internal/x/x.go", "package x\n", ""},
		{"go at root", "main.go", "package main\n", goRule.message},
		{"python script", "scripts/run.py", "print(1)\n", ""},
		{"python elsewhere", "tools/run.py", "print(1)\n", pythonRule.message},
		{"unguarded extension", "go.mod", "module x\n", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeFiles(t, map[string]string{tt.path: tt.content})

			got, err := Check([]string{tt.path})
			require.NoError(t, err)
			if tt.wantMsg == "" {
				assert.Empty(t, got)
				return
			}
			require.Len(t, got, 1)
			assert.Equal(t, tt.path, got[0].Path)
			assert.Equal(t, tt.wantMsg, got[0].Message)
		})
	}
}

func TestCheck_PastePatterns(t *testing.T) {
	writeFiles(t, map[string]string{
		"docs/ci.md":         "Here's what to paste:\n\n```yaml\non:\n  push:\njobs:\n",
		"scripts/setup.ps1":  "jobs:\n",
		"docs/clean.md":      "Run `go test ./...`.\n",
		"scripts/binary.ps1": string([]byte{0xff, 0xfe, 'j', 'o', 'b', 's', ':'}),
	})

	got, err := Check([]string{"docs/ci.md", "scripts/setup.ps1", "docs/clean.md", "scripts/binary.ps1"})
	require.NoError(t, err)

	var ci, ps int
	for _, v := range got {
		switch v.Path {
		case "docs/ci.md":
			ci++
		case "scripts/setup.ps1":
			ps++
		default:
			t.Errorf("unexpected violation %s", v)
		}
	}
	assert.Equal(t, 4, ci)
	assert.Equal(t, 1, ps)
}

func TestCheck_SkipsMissingAndDirectories(t *testing.T) {
	writeFiles(t, map[string]string{"pkg/a/a.go": "package a\n"})

	got, err := Check([]string{"does/not/exist.json", "pkg", "./pkg/a/a.go"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCheck_AbsolutePathIsMisplaced(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "oops.json")
	require.NoError(t, os.WriteFile(p, []byte("{}"), 0o644))

	got, err := Check([]string{p})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, schemaRule.message, got[0].Message)
}

func TestSort(t *testing.T) {
	vs := []Violation{{"b", "x"}, {"a", "z"}, {"a", "y"}}
	Sort(vs)
	assert.Equal(t, []Violation{{"a", "y"}, {"a", "z"}, {"b", "x"}}, vs)
	assert.Equal(t, "a: y", vs[0].String())
}
