package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, _ := io.ReadAll(input.Body)
	m.objects[*input.Key] = data
	if input.ContentType != nil {
		m.types[*input.Key] = *input.ContentType
	}
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func testBucket(client s3Client) *Bucket {
	return newBucket(client, Config{Bucket: "avatars", PublicURL: "https://cdn.example.com/"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestUpload(t *testing.T) {
	mock := newMockS3()
	b := testBucket(mock)

	u, err := b.Upload(context.Background(), "avatars/user 1/a.png", strings.NewReader("png-bytes"), "image/png")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if want := "https://cdn.example.com/avatars/user%201/a.png"; u != want {
		t.Errorf("url = %q, want %q", u, want)
	}
	if got := string(mock.objects["avatars/user 1/a.png"]); got != "png-bytes" {
		t.Errorf("stored %q", got)
	}
	if mock.types["avatars/user 1/a.png"] != "image/png" {
		t.Errorf("content type = %q", mock.types["avatars/user 1/a.png"])
	}

	if err := b.Delete(context.Background(), "avatars/user 1/a.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(mock.objects) != 0 {
		t.Errorf("object not deleted")
	}
}

func TestUploadRejectsLargeBody(t *testing.T) {
	b := testBucket(newMockS3())
	_, err := b.Upload(context.Background(), "big.bin", bytes.NewReader(make([]byte, MaxObjectSize+1)), "")
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}

func TestUploadError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("connection refused")
	b := testBucket(mock)
	if _, err := b.Upload(context.Background(), "a.png", strings.NewReader("x"), "image/png"); err == nil {
		t.Error("expected error")
	}
}

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"avatars/u1/a.png", false},
		{"a.png", false},
		{"", true},
		{"/etc/passwd", true},
		{"avatars/../secret", true},
		{"avatars//a.png", true},
		{`avatars\a.png`, true},
	}
	for _, tt := range tests {
		_, err := CleanPath(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CleanPath(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestDefaultPublicBase(t *testing.T) {
	b := newBucket(newMockS3(), Config{Endpoint: "https://s3.example.com/", Bucket: "fam"}, slog.Default())
	if got := b.URL("x/y.png"); got != "https://s3.example.com/fam/x/y.png" {
		t.Errorf("URL = %q", got)
	}
}
