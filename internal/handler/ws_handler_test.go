package handler

import (
	"net/http/httptest"
	"testing"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		query  string
		want   string
	}{
		{"authorization header", "Bearer abc123", "", "abc123"},
		{"query parameter", "", "abc123", "abc123"},
		{"header wins over query", "Bearer fromheader", "fromquery", "fromheader"},
		{"malformed header ignores query", "abc123", "fromquery", ""},
		{"wrong scheme", "Basic abc123", "", ""},
		{"nothing", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/ws"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			r := httptest.NewRequest("GET", url, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			if got := bearerToken(r); got != tt.want {
				t.Errorf("bearerToken() = %q, want %q", got, tt.want)
			}
		})
	}
}
