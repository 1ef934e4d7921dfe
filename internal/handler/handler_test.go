package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/fampulse/internal/recordstore"
	"github.com/dukerupert/fampulse/internal/recordstore/storetest"
	"github.com/dukerupert/fampulse/internal/storage"
)

func setupRecords(t *testing.T) (*http.ServeMux, *recordstore.SQLStore) {
	t.Helper()
	store := storetest.New(t)
	h := NewRecordHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("POST /rest/v1/{table}/select", h.Select)
	mux.HandleFunc("POST /rest/v1/{table}", h.Insert)
	mux.HandleFunc("PATCH /rest/v1/{table}", h.Update)
	mux.HandleFunc("PUT /rest/v1/{table}", h.Upsert)
	mux.HandleFunc("DELETE /rest/v1/{table}", h.Delete)
	return mux, store
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func selectRows(t *testing.T, h http.Handler, table, body string) []recordstore.Row {
	t.Helper()
	rec := do(t, h, "POST", "/rest/v1/"+table+"/select", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("select status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var rows []recordstore.Row
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rows
}

func TestInsertAndSelect(t *testing.T) {
	mux, _ := setupRecords(t)

	rec := do(t, mux, "POST", "/rest/v1/grocery_categories",
		`{"rows":[{"family_id":"fam-1","name":"Dairy"},{"family_id":"fam-1","name":"Sabzi"},{"family_id":"fam-2","name":"Other"}]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("insert status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var inserted []recordstore.Row
	json.NewDecoder(rec.Body).Decode(&inserted)
	if len(inserted) != 3 || inserted[0].String("id") == "" {
		t.Fatalf("inserted = %v", inserted)
	}

	rows := selectRows(t, mux, "grocery_categories",
		`{"filters":[{"column":"family_id","op":"eq","value":"fam-1"}],"order":[{"column":"name","desc":true}]}`)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].String("name") != "Sabzi" {
		t.Errorf("first row = %q, want Sabzi", rows[0].String("name"))
	}
}

func TestSelectEmptyIsArray(t *testing.T) {
	mux, _ := setupRecords(t)
	rec := do(t, mux, "POST", "/rest/v1/profiles/select", `{}`)
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
}

func TestUpdateUpsertDelete(t *testing.T) {
	mux, store := setupRecords(t)
	ctx := context.Background()
	_, err := store.Insert(ctx, "profiles", recordstore.Row{"id": "asha", "full_name": "Asha"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := do(t, mux, "PATCH", "/rest/v1/profiles",
		`{"patch":{"phone":"9876543210"},"filters":[{"column":"id","op":"eq","value":"asha"}]}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("update status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = do(t, mux, "PUT", "/rest/v1/milk_advance", `{"rows":[{"family_id":"fam-1","balance":30}]}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("upsert status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = do(t, mux, "PUT", "/rest/v1/milk_advance", `{"rows":[{"family_id":"fam-1","balance":12.5}]}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("second upsert status = %d", rec.Code)
	}
	rows := selectRows(t, mux, "milk_advance", `{}`)
	if len(rows) != 1 || rows[0].Float("balance") != 12.5 {
		t.Errorf("advance rows = %v", rows)
	}

	rows = selectRows(t, mux, "profiles", `{"filters":[{"column":"id","op":"eq","value":"asha"}]}`)
	if rows[0].String("phone") != "9876543210" {
		t.Errorf("phone = %q", rows[0].String("phone"))
	}

	rec = do(t, mux, "DELETE", "/rest/v1/profiles", `{"filters":[{"column":"id","op":"eq","value":"asha"}]}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rows := selectRows(t, mux, "profiles", `{}`); len(rows) != 0 {
		t.Errorf("rows after delete = %v", rows)
	}
}

func TestRecordErrors(t *testing.T) {
	mux, _ := setupRecords(t)

	tests := []struct {
		name, method, path, body string
		want                     int
	}{
		{"unknown table", "POST", "/rest/v1/passwords/select", `{}`, http.StatusBadRequest},
		{"unknown column", "POST", "/rest/v1/profiles/select", `{"filters":[{"column":"pin","op":"eq","value":"1"}]}`, http.StatusBadRequest},
		{"bad json", "POST", "/rest/v1/profiles", `{"rows":`, http.StatusBadRequest},
		{"unknown field", "POST", "/rest/v1/profiles", `{"rows":[{"id":"a"}],"extra":1}`, http.StatusBadRequest},
		{"no rows", "POST", "/rest/v1/profiles", `{"rows":[]}`, http.StatusBadRequest},
		{"empty patch", "PATCH", "/rest/v1/profiles", `{"patch":{},"filters":[{"column":"id","op":"eq","value":"a"}]}`, http.StatusBadRequest},
		{"unfiltered delete", "DELETE", "/rest/v1/profiles", `{}`, http.StatusBadRequest},
		{"bad type", "POST", "/rest/v1/shopping_list", `{"rows":[{"family_id":"f","item_id":"i","quantity":"lots"}]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), `"error"`) {
				t.Errorf("body = %q, want JSON error", rec.Body.String())
			}
		})
	}
}

type fakeUploader struct {
	err  error
	path string
	body []byte
	ct   string
}

func (f *fakeUploader) Upload(_ context.Context, path string, body io.Reader, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.path, f.ct = path, contentType
	f.body, _ = io.ReadAll(body)
	return "https://cdn.example.com/" + path, nil
}

func storageMux(u Uploader) *http.ServeMux {
	h := NewStorageHandler(u, slog.New(slog.NewTextHandler(io.Discard, nil)))
	mux := http.NewServeMux()
	mux.HandleFunc("PUT /storage/v1/object/{path...}", h.Upload)
	return mux
}

func upload(mux http.Handler, path, ct string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest("PUT", "/storage/v1/object/"+path, bytes.NewReader(body))
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestStorageUpload(t *testing.T) {
	u := &fakeUploader{}
	rec := upload(storageMux(u), "avatars/asha/a.png", "image/png", []byte("png"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["url"] != "https://cdn.example.com/avatars/asha/a.png" {
		t.Errorf("url = %q", resp["url"])
	}
	if u.path != "avatars/asha/a.png" || u.ct != "image/png" || string(u.body) != "png" {
		t.Errorf("uploader got path=%q ct=%q body=%q", u.path, u.ct, u.body)
	}
}

func TestStorageErrors(t *testing.T) {
	tests := []struct {
		name     string
		uploader Uploader
		ct       string
		want     int
	}{
		{"not configured", nil, "image/png", http.StatusServiceUnavailable},
		{"no content type", &fakeUploader{}, "", http.StatusBadRequest},
		{"bad path", &fakeUploader{err: storage.ErrInvalidPath}, "image/png", http.StatusBadRequest},
		{"too large", &fakeUploader{err: storage.ErrTooLarge}, "image/png", http.StatusRequestEntityTooLarge},
		{"backend down", &fakeUploader{err: errors.New("timeout")}, "image/png", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(storageMux(tt.uploader), "a.png", tt.ct, []byte("x"))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(pinger{}).Health(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewHealthHandler(pinger{err: errors.New("down")}).Health(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}
