package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Token: "tok"})
}

func TestAlertService_Send(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v1/alerts" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		var a Alert
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil || a.AlertName != "HTTPError" {
			t.Errorf("body = %+v, %v", a, err)
		}
		w.Write([]byte(`{"success":true,"data":{"alert_id":"abc","alert_name":"HTTPError",
			"outcomes":{"log":{"status":"success"},"store":{"status":"failure","reason":"quota"}},
			"failed":["store"]}}`))
	})

	res, err := c.Alerts().Send(context.Background(), Alert{AlertName: "HTTPError", Severity: "warning", Instance: "i", Description: "d"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.AlertID != "abc" || len(res.Outcomes) != 2 || res.Outcomes["store"].Reason != "quota" {
		t.Errorf("result = %+v", res)
	}
}

func TestAlertService_List(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("severity") != "critical" || q.Get("page_size") != "5" || q.Get("name") != "" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"success":true,"data":{"data":[{"id":2,"alert_name":"HTTPError"}],
			"page":1,"page_size":5,"total_items":1,"total_pages":1}}`))
	})

	page, err := c.Alerts().List(context.Background(), &ListOptions{Severity: "critical", PageSize: 5})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.TotalItems != 1 || len(page.Data) != 1 || page.Data[0].ID != 2 {
		t.Errorf("page = %+v", page)
	}
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCode  string
		malformed bool
	}{
		{"envelope error", http.StatusBadRequest, `{"success":false,"error":{"code":"MALFORMED_ALERT","message":"missing alert_name"}}`, "MALFORMED_ALERT", true},
		{"unauthorized", http.StatusUnauthorized, `{"success":false,"error":{"code":"UNAUTHORIZED","message":"no token"}}`, "UNAUTHORIZED", false},
		{"plain text", http.StatusBadGateway, "bad gateway", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Alerts().Send(context.Background(), Alert{})
			apiErr, ok := AsAPIError(err)
			if !ok {
				t.Fatalf("error = %v, want APIError", err)
			}
			if apiErr.StatusCode != tt.status || apiErr.Code != tt.wantCode {
				t.Errorf("APIError = %+v", apiErr)
			}
			if apiErr.IsMalformedAlert() != tt.malformed {
				t.Errorf("IsMalformedAlert() = %v", apiErr.IsMalformedAlert())
			}
		})
	}
}

func TestClient_Ready(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/readyz" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"success":true,"data":{"status":"ready","database":"disabled"}}`))
	})

	h, err := c.Ready(context.Background())
	if err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
	if h.Status != "ready" || h.Database != "disabled" {
		t.Errorf("health = %+v", h)
	}
}
