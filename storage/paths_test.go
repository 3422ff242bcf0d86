package storage

import "testing"

func TestValidatePath(t *testing.T) {
	cases := map[string]bool{
		"/a/b.txt":     true,
		"/a/b/c":       true,
		"":             false,
		"a/b":          false,
		"/":            false,
		"/a/../b":      false,
		"/a/./b":       false,
		"//etc/passwd": false,
		"/a//b":        false,
		"/a/":          false,
	}
	for path, want := range cases {
		if got := ValidatePath(path); got != want {
			t.Errorf("ValidatePath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestValidateRevisionID(t *testing.T) {
	cases := map[string]bool{
		"root":            true,
		"a1b2c3":          true,
		"":                false,
		".":               false,
		"..":              false,
		"../other/head":   false,
		"a/b":             false,
		`a\b`:             false,
	}
	for id, want := range cases {
		if got := ValidateRevisionID(id); got != want {
			t.Errorf("ValidateRevisionID(%q) = %v, want %v", id, got, want)
		}
	}
}
