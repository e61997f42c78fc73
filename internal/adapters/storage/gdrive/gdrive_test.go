package gdrive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"teamart/internal/ports"
)

// fakeDrive serves the handful of Drive v3 calls the client makes.
type fakeDrive struct {
	mu       sync.Mutex
	existing string // id returned by files.list, empty for none
	calls    []string
	query    string
	shared   []string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/files"):
		f.calls = append(f.calls, "list")
		f.query = r.URL.Query().Get("q")
		if f.existing == "" {
			io.WriteString(w, `{"files":[]}`)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"files": []map[string]string{{"id": f.existing}}})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/files"):
		f.calls = append(f.calls, "create")
		io.ReadAll(r.Body)
		io.WriteString(w, `{"id":"created-id"}`)

	case r.Method == http.MethodPatch:
		f.calls = append(f.calls, "update")
		io.ReadAll(r.Body)
		id := path[strings.LastIndex(path, "/")+1:]
		json.NewEncoder(w).Encode(map[string]string{"id": id})

	case r.Method == http.MethodPost && strings.HasSuffix(path, "/permissions"):
		f.calls = append(f.calls, "share")
		var p drive.Permission
		json.NewDecoder(r.Body).Decode(&p)
		f.shared = append(f.shared, p.Type+":"+p.Role)
		io.WriteString(w, `{"id":"perm"}`)

	case r.Method == http.MethodGet && strings.Contains(path, "/files/"):
		id := path[strings.LastIndex(path, "/")+1:]
		if r.URL.Query().Get("alt") == "media" {
			f.calls = append(f.calls, "download")
			w.Header().Set("Content-Type", "image/png")
			io.WriteString(w, "png:"+id)
			return
		}
		f.calls = append(f.calls, "get")
		json.NewEncoder(w).Encode(map[string]string{
			"id":             id,
			"webContentLink": "https://drive.example.com/uc?id=" + id,
		})

	default:
		http.Error(w, "unexpected "+r.Method+" "+path, http.StatusNotImplemented)
	}
}

func newTestClient(t *testing.T, fake *fakeDrive, folder string) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/drive/v3/"),
		option.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(svc, folder)
}

func TestPutObjectCreatesWhenMissing(t *testing.T) {
	fake := &fakeDrive{}
	c := newTestClient(t, fake, "folder-1")

	out, err := c.PutObject(context.Background(), ports.PutObjectInput{
		ObjectKey:   "team's_bg_1.png",
		ContentType: "image/png",
		Reader:      strings.NewReader("data"),
		Size:        4,
		Upsert:      true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.ObjectKey != "created-id" {
		t.Errorf("expected the drive file id, got %q", out.ObjectKey)
	}
	if strings.Join(fake.calls, ",") != "list,create" {
		t.Errorf("unexpected calls %v", fake.calls)
	}
	if !strings.Contains(fake.query, `name = 'team\'s_bg_1.png'`) || !strings.Contains(fake.query, "'folder-1' in parents") {
		t.Errorf("unexpected query %q", fake.query)
	}
}

func TestPutObjectUpdatesExisting(t *testing.T) {
	fake := &fakeDrive{existing: "old-id"}
	c := newTestClient(t, fake, "")

	out, err := c.PutObject(context.Background(), ports.PutObjectInput{
		ObjectKey: "a.png",
		Reader:    strings.NewReader("data"),
		Upsert:    true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.ObjectKey != "old-id" {
		t.Errorf("expected the existing id, got %q", out.ObjectKey)
	}
	if strings.Join(fake.calls, ",") != "list,update" {
		t.Errorf("unexpected calls %v", fake.calls)
	}
}

func TestPutObjectWithoutUpsertSkipsLookup(t *testing.T) {
	fake := &fakeDrive{existing: "old-id"}
	c := newTestClient(t, fake, "")

	if _, err := c.PutObject(context.Background(), ports.PutObjectInput{
		ObjectKey: "a.png",
		Reader:    strings.NewReader("data"),
	}); err != nil {
		t.Fatal(err)
	}
	if strings.Join(fake.calls, ",") != "create" {
		t.Errorf("unexpected calls %v", fake.calls)
	}
}

func TestPublicURLSharesFile(t *testing.T) {
	fake := &fakeDrive{}
	c := newTestClient(t, fake, "")

	url, err := c.PublicURL(context.Background(), "file-9")
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://drive.example.com/uc?id=file-9" {
		t.Errorf("unexpected url %q", url)
	}
	if len(fake.shared) != 1 || fake.shared[0] != "anyone:reader" {
		t.Errorf("expected an anyone:reader permission, got %v", fake.shared)
	}
}

func TestGetObjectDownloads(t *testing.T) {
	fake := &fakeDrive{}
	c := newTestClient(t, fake, "")

	rc, ct, _, err := c.GetObject(context.Background(), "file-3")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	b, _ := io.ReadAll(rc)
	if string(b) != "png:file-3" || ct != "image/png" {
		t.Errorf("unexpected download %q (%s)", b, ct)
	}
}
