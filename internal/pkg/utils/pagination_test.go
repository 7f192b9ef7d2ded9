package utils

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
)

func TestParsePageRequest(t *testing.T) {
	tests := []struct {
		query      string
		wantNumber int
		wantSize   int
		wantOffset int
		wantErr    bool
	}{
		{"", 1, DefaultPageSize, 0, false},
		{"?page=3&page_size=10", 3, 10, 20, false},
		{"?page=0&page_size=-5", 1, DefaultPageSize, 0, false},
		{"?page_size=1000", 1, MaxPageSize, 0, false},
		{"?page=abc", 0, 0, 0, true},
		{"?page_size=ten", 0, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/alerts"+tt.query, nil)
			got, err := ParsePageRequest(r)
			if tt.wantErr {
				if err == nil || err.Code != errors.ErrCodeBadRequest {
					t.Fatalf("ParsePageRequest() error = %v, want BAD_REQUEST", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePageRequest() error = %v", err)
			}
			if got.Number != tt.wantNumber || got.Size != tt.wantSize || got.Offset() != tt.wantOffset {
				t.Errorf("ParsePageRequest() = %+v offset %d", got, got.Offset())
			}
		})
	}
}

func TestNewPage(t *testing.T) {
	p := NewPage([]int{1}, PageRequest{Number: 2, Size: 10}, 21)
	if p.TotalPages != 3 {
		t.Errorf("TotalPages = %d, want 3", p.TotalPages)
	}

	empty := NewPage[int](nil, PageRequest{Number: 1, Size: 10}, 0)
	if empty.TotalPages != 0 {
		t.Error("TotalPages for empty result should be 0")
	}
	b, _ := json.Marshal(empty)
	if !strings.Contains(string(b), `"data":[]`) {
		t.Errorf("empty page encoded as %s, want an empty data array", b)
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.RateLimited("slow down"))

	if rr.Code != 429 {
		t.Errorf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("rate limited response should carry Retry-After")
	}

	var env Envelope
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Success || env.Error == nil || env.Error.Code != errors.ErrCodeRateLimited {
		t.Errorf("envelope = %+v", env)
	}
}
