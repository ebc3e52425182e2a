// Package store keeps uploaded G-code files in a single directory.
package store

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// MaxFileSize is the largest upload Save accepts.
const MaxFileSize = 50 << 20

var (
	ErrNotFound    = errors.New("file not found")
	ErrInvalidName = errors.New("invalid filename")
	ErrTooLarge    = errors.New("file too large")
)

var safeName = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)

var extensions = map[string]bool{
	".gcode": true,
	".nc":    true,
	".ngc":   true,
	".txt":   true,
	"":       true,
}

// FileInfo describes a stored file.
type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Dir is a directory of G-code files.
type Dir struct {
	path string
}

// Open returns a Dir rooted at path, creating it if needed.
func Open(path string) (*Dir, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	err = os.MkdirAll(abs, 0755)
	if err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Dir{path: abs}, nil
}

// Path returns the absolute directory path.
func (d *Dir) Path() string { return d.path }

// SafeName reduces name to its base name and checks it only uses
// letters, digits, `_`, `.` and `-`.
func SafeName(name string) (string, bool) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(filepath.FromSlash("/" + name))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", false
	}
	if !safeName.MatchString(base) {
		return "", false
	}
	return base, true
}

func (d *Dir) resolve(name string) (string, error) {
	base, ok := SafeName(name)
	if !ok {
		return "", ErrInvalidName
	}
	full := filepath.Join(d.path, base)
	rel, err := filepath.Rel(d.path, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", ErrInvalidName
	}
	return full, nil
}

// List returns the G-code files in the directory, sorted by name.
func (d *Dir) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return []FileInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	files := []FileInfo{}
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if !extensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{Name: e.Name(), Size: info.Size()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Lines returns the lines of a stored file. A missing or invalid name
// returns ErrNotFound.
func (d *Dir) Lines(name string) ([]string, error) {
	full, err := d.resolve(name)
	if err != nil {
		return nil, ErrNotFound
	}
	f, err := os.Open(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scan := bufio.NewScanner(f)
	scan.Buffer(make([]byte, 64*1024), MaxFileSize)
	for scan.Scan() {
		lines = append(lines, strings.TrimSuffix(scan.Text(), "\r"))
	}
	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if lines == nil {
		lines = []string{}
	}
	return lines, nil
}

// Save stores the contents of r as name, replacing any existing file.
func (d *Dir) Save(name string, r io.Reader) error {
	full, err := d.resolve(name)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return err
	}
	if len(data) > MaxFileSize {
		return ErrTooLarge
	}
	err = os.MkdirAll(d.path, 0755)
	if err != nil {
		return err
	}
	return os.WriteFile(full, data, 0644)
}

// Delete removes a stored file.
func (d *Dir) Delete(name string) error {
	full, err := d.resolve(name)
	if err != nil {
		return ErrNotFound
	}
	err = os.Remove(full)
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
