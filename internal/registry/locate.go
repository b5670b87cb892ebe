// Package registry resolves canonical model ids to local weight files.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Locate scans dir for a *.gguf file backing the canonical id and returns
// its absolute path plus the quantization tag derived from the filename.
// A canonical id like "openai/gpt-oss-120b" matches files whose name
// contains either "openai--gpt-oss-120b" (hub cache style) or the bare
// trailing segment "gpt-oss-120b".
func Locate(dir, canonicalID string) (path string, quant string, err error) {
	base, err := expandHome(dir)
	if err != nil {
		return "", "", err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", "", fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", "", fmt.Errorf("read models dir: %w", err)
	}

	flat := strings.ToLower(strings.ReplaceAll(canonicalID, "/", "--"))
	tail := flat
	if i := strings.LastIndex(flat, "--"); i >= 0 {
		tail = flat[i+2:]
	}

	var candidates []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if !strings.HasSuffix(name, ".gguf") {
			continue
		}
		if strings.Contains(name, flat) || strings.Contains(name, tail) {
			candidates = append(candidates, e.Name())
		}
	}
	if len(candidates) == 0 {
		return "", "", fmt.Errorf("no weights for %q under %s", canonicalID, abs)
	}
	// Deterministic pick when several variants are present.
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c < best {
			best = c
		}
	}
	p := filepath.Join(abs, best)
	return p, QuantTag(best), nil
}

// QuantTag extracts the quantization tag from a GGUF filename, e.g.
// "gpt-oss-120b-mxfp4.gguf" -> "mxfp4", "TinyLlama.Q4_K_M.gguf" -> "q4_k_m".
// Returns "" when the filename carries no recognizable tag.
func QuantTag(filename string) string {
	name := strings.ToLower(strings.TrimSuffix(filepath.Base(filename), ".gguf"))
	tokens := strings.FieldsFunc(name, func(r rune) bool {
		return r == '.' || r == '-'
	})
	tag := ""
	for _, tok := range tokens {
		if isQuantToken(tok) {
			tag = tok
		}
	}
	return tag
}

func isQuantToken(tok string) bool {
	switch tok {
	case "mxfp4", "f16", "f32", "bf16":
		return true
	}
	if len(tok) >= 2 && (tok[0] == 'q' || strings.HasPrefix(tok, "iq")) {
		rest := strings.TrimPrefix(tok, "iq")
		rest = strings.TrimPrefix(rest, "q")
		return len(rest) > 0 && rest[0] >= '0' && rest[0] <= '9'
	}
	return false
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
