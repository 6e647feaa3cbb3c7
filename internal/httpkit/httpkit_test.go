package httpkit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewClientSetsUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewClient()
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if !strings.HasPrefix(gotUA, "Studly/") {
		t.Errorf("User-Agent = %q, want Studly/ prefix", gotUA)
	}
}

func TestNewClientCustomUserAgent(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	client := NewClient(WithUserAgent("test-agent/1.0"))
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	DrainAndClose(resp.Body, 1024)

	if gotUA != "test-agent/1.0" {
		t.Errorf("User-Agent = %q, want test-agent/1.0", gotUA)
	}
}

func TestReadErrorBody(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		limit int64
		want  string
	}{
		{"normal body", `{"error":"bad"}`, 4096, `{"error":"bad"}`},
		{"empty body", "", 4096, "(no response body)"},
		{"truncated", "abcdefgh", 4, "abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReadErrorBody(strings.NewReader(tt.body), tt.limit)
			if got != tt.want {
				t.Errorf("ReadErrorBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusError(t *testing.T) {
	err := StatusError("openai", 429, strings.NewReader("rate limited"))
	want := "openai API error 429: rate limited"
	if err.Error() != want {
		t.Errorf("StatusError() = %q, want %q", err.Error(), want)
	}
}
