package blobstoretest

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// GCSServer is a Cloud Storage JSON API endpoint holding one bucket. It
// answers multipart uploads, media and metadata reads, object listing and
// deletes.
type GCSServer struct {
	*httptest.Server

	Bucket string

	mu      sync.Mutex
	objects map[string][]byte
	deletes int
}

// NewGCSServer starts a server that is closed when the test ends.
func NewGCSServer(t testing.TB, bucket string) *GCSServer {
	t.Helper()
	s := &GCSServer{Bucket: bucket, objects: make(map[string][]byte)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Endpoint is the JSON API base URL to hand to option.WithEndpoint.
func (s *GCSServer) Endpoint() string {
	return s.URL + "/storage/v1/"
}

// Keys returns every full object name in the bucket, sorted.
func (s *GCSServer) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.objects, "")
}

// Object returns the stored body of name.
func (s *GCSServer) Object(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[name]
	return data, ok
}

// Deletes counts the object delete calls received.
func (s *GCSServer) Deletes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes
}

func (s *GCSServer) handle(w http.ResponseWriter, r *http.Request) {
	uploadPath := "/upload/storage/v1/b/" + s.Bucket + "/o"
	objectsPath := "/storage/v1/b/" + s.Bucket + "/o"

	switch {
	case r.URL.Path == uploadPath && r.Method == http.MethodPost:
		s.upload(w, r)
	case r.URL.Path == objectsPath && r.Method == http.MethodGet:
		s.list(w, r)
	case strings.HasPrefix(r.URL.Path, objectsPath+"/"):
		name := strings.TrimPrefix(r.URL.Path, objectsPath+"/")
		switch r.Method {
		case http.MethodGet:
			s.get(w, r, name)
		case http.MethodDelete:
			s.delete(w, name)
		default:
			writeGCSError(w, http.StatusMethodNotAllowed, r.Method+" not supported")
		}
	default:
		writeGCSError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
	}
}

// upload handles uploadType=multipart: a JSON metadata part followed by the
// object bytes.
func (s *GCSServer) upload(w http.ResponseWriter, r *http.Request) {
	if t := r.URL.Query().Get("uploadType"); t != "multipart" {
		writeGCSError(w, http.StatusNotImplemented, "uploadType "+t+" not supported")
		return
	}
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		writeGCSError(w, http.StatusBadRequest, err.Error())
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	meta, err := mr.NextPart()
	if err != nil {
		writeGCSError(w, http.StatusBadRequest, "metadata part: "+err.Error())
		return
	}
	var attrs struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(meta).Decode(&attrs); err != nil || attrs.Name == "" {
		writeGCSError(w, http.StatusBadRequest, "object metadata has no name")
		return
	}

	media, err := mr.NextPart()
	if err != nil {
		writeGCSError(w, http.StatusBadRequest, "media part: "+err.Error())
		return
	}
	data, err := io.ReadAll(media)
	if err != nil {
		writeGCSError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.objects[attrs.Name] = data
	s.mu.Unlock()
	writeGCSJSON(w, http.StatusOK, s.resource(attrs.Name, len(data)))
}

func (s *GCSServer) get(w http.ResponseWriter, r *http.Request, name string) {
	data, ok := s.Object(name)
	if !ok {
		writeGCSError(w, http.StatusNotFound, "No such object: "+s.Bucket+"/"+name)
		return
	}
	if r.URL.Query().Get("alt") != "media" {
		writeGCSJSON(w, http.StatusOK, s.resource(name, len(data)))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Goog-Generation", "1")
	w.Header().Set("X-Goog-Metageneration", "1")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *GCSServer) delete(w http.ResponseWriter, name string) {
	s.mu.Lock()
	_, ok := s.objects[name]
	delete(s.objects, name)
	s.deletes++
	s.mu.Unlock()
	if !ok {
		writeGCSError(w, http.StatusNotFound, "No such object: "+s.Bucket+"/"+name)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *GCSServer) list(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")

	s.mu.Lock()
	keys := sortedKeys(s.objects, prefix)
	items := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		items = append(items, s.resource(k, len(s.objects[k])))
	}
	s.mu.Unlock()

	writeGCSJSON(w, http.StatusOK, map[string]any{
		"kind":  "storage#objects",
		"items": items,
	})
}

func (s *GCSServer) resource(name string, size int) map[string]any {
	return map[string]any{
		"kind":           "storage#object",
		"id":             fmt.Sprintf("%s/%s/1", s.Bucket, name),
		"bucket":         s.Bucket,
		"name":           name,
		"size":           strconv.Itoa(size),
		"generation":     "1",
		"metageneration": "1",
		"contentType":    "application/octet-stream",
	}
}

func writeGCSError(w http.ResponseWriter, status int, message string) {
	writeGCSJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": message},
	})
}

func writeGCSJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
