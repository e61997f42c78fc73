package localfs

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"teamart/internal/ports"
)

// LocalFS implements ports.StorageProvider on the local filesystem.
// Objects live under root and are published below publicBaseURL/files/.
type LocalFS struct {
	root          string
	publicBaseURL string
}

var _ ports.StorageProvider = (*LocalFS)(nil)

func New(root, publicBaseURL string) *LocalFS {
	return &LocalFS{root: root, publicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

func (l *LocalFS) Provider() string { return "localfs" }

// Root returns the storage root directory.
func (l *LocalFS) Root() string { return l.root }

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	dst, err := l.path(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !in.Upsert {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	outF, err := os.OpenFile(dst, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return ports.PutObjectOutput{}, fmt.Errorf("object %q already exists", in.ObjectKey)
		}
		return ports.PutObjectOutput{}, err
	}
	defer outF.Close()

	n, err := io.Copy(outF, in.Reader)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := outF.Close(); err != nil {
		return ports.PutObjectOutput{}, err
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.path(objectKey)
	if err != nil {
		return nil, "", 0, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, "", 0, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, "", 0, err
	}
	if st.IsDir() {
		f.Close()
		return nil, "", 0, os.ErrNotExist
	}
	size = st.Size()

	// Prefer extension-based type. If empty, sniff first bytes.
	contentType = mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, io.SeekStart)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

// PublicURL returns the address under which the API's /files route serves
// the object. It does not check that the object exists.
func (l *LocalFS) PublicURL(ctx context.Context, objectKey string) (string, error) {
	if _, err := l.path(objectKey); err != nil {
		return "", err
	}

	segs := strings.Split(objectKey, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return l.publicBaseURL + "/files/" + strings.Join(segs, "/"), nil
}

// path maps a slash separated key below root.
func (l *LocalFS) path(objectKey string) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("object_key is required")
	}

	root := filepath.Clean(l.root)
	p := filepath.Join(root, filepath.FromSlash(objectKey))
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("object key %q escapes the storage root", objectKey)
	}
	return p, nil
}
