package engine

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizeAlias(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Šárka Nováková", "sarka novakova"},
		{"jean-luc  picard", "jean luc picard"},
		{"  Zoë_O.Neil ", "zoe o neil"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := normalizeAlias(tc.in); got != tc.want {
			t.Errorf("normalizeAlias(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAliasMatches(t *testing.T) {
	tests := []struct {
		alias, query string
		want         bool
	}{
		{"Šárka Nováková", "sarka", true},
		{"Šárka Nováková", "nováková šárka", true},
		{"Šárka Nováková", "sarka dvorak", false},
		{"Bob", "", true},
	}
	for _, tc := range tests {
		if got := aliasMatches(tc.alias, tc.query); got != tc.want {
			t.Errorf("aliasMatches(%q, %q) = %v, want %v", tc.alias, tc.query, got, tc.want)
		}
	}
}

// listFiles returns the regular files below dir.
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return out
}
