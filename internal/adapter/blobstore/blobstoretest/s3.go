// Package blobstoretest serves in-memory S3 and Cloud Storage endpoints that
// the blob store clients can be pointed at in tests.
package blobstoretest

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// S3Server is a path-style S3 endpoint holding one bucket. It answers
// PutObject, GetObject, DeleteObject, ListObjectsV2 and DeleteObjects.
type S3Server struct {
	*httptest.Server

	Bucket string
	// PageSize caps the keys returned per ListObjectsV2 page.
	PageSize int

	mu            sync.Mutex
	objects       map[string][]byte
	deleteBatches []int
}

// NewS3Server starts a server that is closed when the test ends.
func NewS3Server(t testing.TB, bucket string) *S3Server {
	t.Helper()
	s := &S3Server{Bucket: bucket, PageSize: 1000, objects: make(map[string][]byte)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// Keys returns every full object key in the bucket, sorted.
func (s *S3Server) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.objects, "")
}

// Object returns the stored body of key.
func (s *S3Server) Object(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return data, ok
}

// SetObject stores an object directly, bypassing the API.
func (s *S3Server) SetObject(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
}

// DeleteBatches returns the number of keys in each DeleteObjects call received.
func (s *S3Server) DeleteBatches() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.deleteBatches...)
}

func (s *S3Server) handle(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/"+s.Bucket)
	if !ok || (rest != "" && rest[0] != '/') {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist.")
		return
	}
	key := strings.TrimPrefix(rest, "/")
	q := r.URL.Query()

	switch {
	case key == "" && r.Method == http.MethodGet && q.Get("list-type") == "2":
		s.list(w, r)
	case key == "" && r.Method == http.MethodPost && q.Has("delete"):
		s.deleteObjects(w, r)
	case key != "" && r.Method == http.MethodPut:
		s.put(w, r, key)
	case key != "" && r.Method == http.MethodGet:
		s.get(w, key)
	case key != "" && r.Method == http.MethodDelete:
		s.mu.Lock()
		delete(s.objects, key)
		s.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		writeS3Error(w, http.StatusNotImplemented, "NotImplemented", r.Method+" "+r.URL.String())
	}
}

func (s *S3Server) put(w http.ResponseWriter, r *http.Request, key string) {
	data, err := readS3Body(r)
	if err != nil {
		writeS3Error(w, http.StatusBadRequest, "IncompleteBody", err.Error())
		return
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	w.Header().Set("ETag", fmt.Sprintf("%q", strconv.Itoa(len(data))))
	w.WriteHeader(http.StatusOK)
}

func (s *S3Server) get(w http.ResponseWriter, key string) {
	data, ok := s.Object(key)
	if !ok {
		writeS3Error(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type listEntry struct {
	Key  string
	Size int
}

type listBucketResult struct {
	XMLName               xml.Name `xml:"ListBucketResult"`
	Name                  string
	Prefix                string
	KeyCount              int
	MaxKeys               int
	IsTruncated           bool
	ContinuationToken     string `xml:",omitempty"`
	NextContinuationToken string `xml:",omitempty"`
	Contents              []listEntry
}

// list pages through the sorted keys; the continuation token is the index of
// the next key.
func (s *S3Server) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("prefix")

	start := 0
	if tok := q.Get("continuation-token"); tok != "" {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 0 {
			writeS3Error(w, http.StatusBadRequest, "InvalidArgument", "bad continuation token")
			return
		}
		start = n
	}

	s.mu.Lock()
	keys := sortedKeys(s.objects, prefix)
	sizes := make(map[string]int, len(keys))
	for _, k := range keys {
		sizes[k] = len(s.objects[k])
	}
	s.mu.Unlock()

	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = 1000
	}
	start = min(start, len(keys))
	end := min(start+pageSize, len(keys))

	res := listBucketResult{
		Name:              s.Bucket,
		Prefix:            prefix,
		KeyCount:          end - start,
		MaxKeys:           pageSize,
		IsTruncated:       end < len(keys),
		ContinuationToken: q.Get("continuation-token"),
	}
	if res.IsTruncated {
		res.NextContinuationToken = strconv.Itoa(end)
	}
	for _, k := range keys[start:end] {
		res.Contents = append(res.Contents, listEntry{Key: k, Size: sizes[k]})
	}
	writeXML(w, http.StatusOK, res)
}

type deleteRequest struct {
	Objects []struct {
		Key string
	} `xml:"Object"`
	Quiet bool
}

type deleteResult struct {
	XMLName xml.Name `xml:"DeleteResult"`
	Deleted []struct {
		Key string
	}
}

func (s *S3Server) deleteObjects(w http.ResponseWriter, r *http.Request) {
	body, err := readS3Body(r)
	if err != nil {
		writeS3Error(w, http.StatusBadRequest, "IncompleteBody", err.Error())
		return
	}
	var req deleteRequest
	if err := xml.Unmarshal(body, &req); err != nil {
		writeS3Error(w, http.StatusBadRequest, "MalformedXML", err.Error())
		return
	}
	if len(req.Objects) > 1000 {
		writeS3Error(w, http.StatusBadRequest, "MalformedXML", "more than 1000 keys in one request")
		return
	}

	s.mu.Lock()
	for _, o := range req.Objects {
		delete(s.objects, o.Key)
	}
	s.deleteBatches = append(s.deleteBatches, len(req.Objects))
	s.mu.Unlock()

	var res deleteResult
	if !req.Quiet {
		res.Deleted = req.Objects
	}
	writeXML(w, http.StatusOK, res)
}

// readS3Body returns the request payload, unwrapping aws-chunked framing when
// the client streams a trailing checksum.
func readS3Body(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") {
		return body, nil
	}

	var out []byte
	for {
		line, rest, ok := bytes.Cut(body, []byte("\r\n"))
		if !ok {
			return nil, errors.New("truncated aws-chunked body")
		}
		sizeHex, _, _ := bytes.Cut(line, []byte(";"))
		n, err := strconv.ParseInt(string(sizeHex), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("aws-chunked size: %w", err)
		}
		if n == 0 {
			return out, nil
		}
		if int64(len(rest)) < n+2 {
			return nil, errors.New("truncated aws-chunked chunk")
		}
		out = append(out, rest[:n]...)
		body = rest[n+2:]
	}
}

func writeS3Error(w http.ResponseWriter, status int, code, message string) {
	writeXML(w, status, struct {
		XMLName xml.Name `xml:"Error"`
		Code    string
		Message string
	}{Code: code, Message: message})
}

func writeXML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(v)
}

func sortedKeys(objects map[string][]byte, prefix string) []string {
	keys := make([]string, 0, len(objects))
	for k := range objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
