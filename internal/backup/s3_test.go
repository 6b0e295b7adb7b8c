package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 serves the path-style subset of S3 used by the S3 destination.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Path is /<bucket>/<key>.
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	resp := func(code int, body string) *http.Response {
		return &http.Response{
			StatusCode: code,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     http.Header{"Content-Type": {"application/xml"}},
			Request:    req,
		}
	}
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		prefix := req.URL.Query().Get("prefix")
		var keys []string
		for k := range f.objects {
			if strings.HasPrefix(k, prefix) {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
		for _, k := range keys {
			fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(f.objects[k]))
		}
		b.WriteString(`</ListBucketResult>`)
		return resp(http.StatusOK, b.String()), nil
	case req.Method == http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		f.objects[key] = body
		r := resp(http.StatusOK, "")
		r.Header.Set("ETag", `"etag"`)
		return r, nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return resp(http.StatusNoContent, ""), nil
	}
	return resp(http.StatusNotImplemented, ""), nil
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for k := range f.objects {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func newFakeS3(t *testing.T, prefix string) (*S3, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	cfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	if err != nil {
		t.Fatal(err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return NewS3FromClient(client, "bucket", prefix), fake
}

func TestS3Rotation(t *testing.T) {
	ctx := t.Context()
	dest, fake := newFakeS3(t, "clinic/")
	fake.objects["clinic/unrelated.txt"] = []byte("keep me")
	src := writeSource(t, "SQLite format 3\x00")
	r := &Rotator{
		Source:       src,
		Destinations: []Destination{dest},
		Keep:         2,
		Now:          clock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)),
	}
	var names []string
	for range 4 {
		name, err := r.Rotate(ctx)
		if err != nil {
			t.Fatal(err)
		}
		names = append(names, name)
	}
	want := []string{"clinic/" + names[2], "clinic/" + names[3], "clinic/unrelated.txt"}
	if got := fake.keys(); !slices.Equal(got, want) {
		t.Fatalf("keys = %v, want %v", got, want)
	}
	listed, err := dest.List(ctx, r.Prefix())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(listed, names[2:]) {
		t.Fatalf("List = %v", listed)
	}
	if len(fake.objects["clinic/"+names[3]]) == 0 || !bytes.Contains(fake.objects["clinic/"+names[3]], []byte("SQLite format 3")) {
		t.Errorf("uploaded body = %q", fake.objects["clinic/"+names[3]])
	}
}

func TestNewS3RequiresBucket(t *testing.T) {
	if _, err := NewS3(t.Context(), S3Config{}); err == nil {
		t.Fatal("expected error")
	}
}
