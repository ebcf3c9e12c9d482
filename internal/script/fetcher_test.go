package script

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPFetcherHexBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("0xdeadbeef\n"))
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(0)
	got, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(got, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("unexpected bytecode: %x", got)
	}
}

func TestHTTPFetcherRawBody(t *testing.T) {
	payload := []byte{0x00, 0x01, 0x02, 0xff}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(payload)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(0)
	got, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("unexpected bytecode: %x", got)
	}
}

func TestHTTPFetcherErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := NewHTTPFetcher(0)
	if _, err := fetcher.Fetch(context.Background(), server.URL); err == nil {
		t.Fatal("non-2xx response must fail")
	}
	if _, err := fetcher.Fetch(context.Background(), ""); err == nil {
		t.Fatal("empty url must fail")
	}
}

func TestStaticFetcher(t *testing.T) {
	fetcher := Static([]byte{0x01})
	got, err := fetcher.Fetch(context.Background(), "ignored")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	got[0] = 0xff
	again, _ := fetcher.Fetch(context.Background(), "ignored")
	if again[0] != 0x01 {
		t.Fatal("static fetcher must hand out copies")
	}
}
