// Package images resolves stored image names to files on disk and lists the
// images and backgrounds the service can work with.
package images

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"teamart/internal/pkg/errors"
)

// ProbeExtensions is the order in which bare names are probed.
var ProbeExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".svg"}

// PoolExtensions are the suffixes eligible as backgrounds.
var PoolExtensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// Ref is a resolved stored image. Path exists at the time of resolution.
type Ref struct {
	Name string
	Path string
	Ext  string
}

// Locator finds images by name inside a single directory.
type Locator struct {
	dir        string
	extensions []string
}

func NewLocator(dir string) *Locator {
	return &Locator{dir: dir, extensions: ProbeExtensions}
}

// Dir returns the images directory.
func (l *Locator) Dir() string { return l.dir }

// Locate resolves name. A name with a dot is checked as is; a bare name is
// probed with each extension in order and the first existing file wins.
func (l *Locator) Locate(name string) (Ref, error) {
	if !safeName(name) {
		return Ref{}, errors.NotFound("image", name)
	}

	if strings.Contains(name, ".") {
		p := filepath.Join(l.dir, name)
		if isFile(p) {
			return Ref{Name: name, Path: p, Ext: filepath.Ext(name)}, nil
		}
		return Ref{}, errors.NotFound("image", name)
	}

	for _, ext := range l.extensions {
		p := filepath.Join(l.dir, name+ext)
		if isFile(p) {
			return Ref{Name: name, Path: p, Ext: ext}, nil
		}
	}
	return Ref{}, errors.NotFound("image", name)
}

// List returns the names of supported images in the directory, sorted. The
// directory is created when missing.
func (l *Locator) List(ctx context.Context) ([]string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "images.list", "failed to create images directory")
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, errors.Wrap(err, "images.list", "failed to read images directory")
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if e.IsDir() || !hasSuffixFold(e.Name(), l.extensions) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Pool is the directory of candidate backgrounds.
type Pool struct {
	dir        string
	extensions []string
}

func NewPool(dir string) *Pool {
	return &Pool{dir: dir, extensions: PoolExtensions}
}

// Dir returns the pool directory.
func (p *Pool) Dir() string { return p.dir }

// Eligible lists the pool entries with a background extension, sorted by
// name. A missing directory is NOT_FOUND.
func (p *Pool) Eligible() ([]Ref, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("background directory", p.dir)
		}
		return nil, errors.Wrap(err, "images.pool", "failed to read background directory")
	}

	refs := make([]Ref, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !hasSuffixFold(e.Name(), p.extensions) {
			continue
		}
		refs = append(refs, Ref{
			Name: e.Name(),
			Path: filepath.Join(p.dir, e.Name()),
			Ext:  strings.ToLower(filepath.Ext(e.Name())),
		})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	return refs, nil
}

func safeName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return true
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

func hasSuffixFold(name string, exts []string) bool {
	lower := strings.ToLower(name)
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
