package common

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// FindSidecar looks next to path for a file with the same base name and
// extension ext (".shx", ".cpg", ...), ignoring case. It returns "" when
// none exists.
func FindSidecar(path, ext string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	stem := strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
	want := stem + strings.ToLower(ext)

	exact := filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+ext)
	if _, err := os.Stat(exact); err == nil {
		return exact
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() && strings.ToLower(e.Name()) == want {
			return filepath.Join(dir, e.Name())
		}
	}
	return ""
}

// SidecarPath returns path with its extension replaced by ext.
func SidecarPath(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// ReadCodePage returns the first line of a .cpg file, trimmed.
func ReadCodePage(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", IOError("open", path, err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	if err := sc.Err(); err != nil {
		return "", IOError("read", path, err)
	}
	return "", nil
}

// WriteCodePage writes a .cpg sidecar naming the encoding.
func WriteCodePage(path, name string) error {
	if err := os.WriteFile(path, []byte(name+"\n"), 0o644); err != nil {
		return IOError("write", path, err)
	}
	return nil
}
