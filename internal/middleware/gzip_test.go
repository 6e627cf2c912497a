package middleware

import (
	"bytes"
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func echoHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	if len(body) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
}

func gzipBytes(t *testing.T, s string) io.Reader {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte(s)); err != nil {
		t.Fatalf("write gzip: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip: %v", err)
	}
	return &buf
}

func TestGzipMiddleware(t *testing.T) {
	type want struct {
		statusCode      int
		contentEncoding string
		body            string
	}

	tests := []struct {
		name            string
		requestBody     string
		compressRequest bool
		acceptEncoding  string
		want            want
	}{
		{
			name:           "client accepts gzip",
			requestBody:    `{"amount":1500,"category":"GENERAL","type":"EARN"}`,
			acceptEncoding: "gzip, deflate",
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				body:            `{"echo":{"amount":1500,"category":"GENERAL","type":"EARN"}}`,
			},
		},
		{
			name:        "client does not accept gzip",
			requestBody: `{"mobile":"9876543211"}`,
			want: want{
				statusCode: http.StatusOK,
				body:       `{"echo":{"mobile":"9876543211"}}`,
			},
		},
		{
			name:            "compressed request body",
			requestBody:     `{"name":"Asha","mobile":"9000000001"}`,
			compressRequest: true,
			acceptEncoding:  "gzip",
			want: want{
				statusCode:      http.StatusOK,
				contentEncoding: "gzip",
				body:            `{"echo":{"name":"Asha","mobile":"9000000001"}}`,
			},
		},
		{
			name:           "no content is not compressed",
			acceptEncoding: "gzip",
			want: want{
				statusCode: http.StatusNoContent,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requestBody io.Reader = strings.NewReader(tt.requestBody)
			if tt.compressRequest {
				requestBody = gzipBytes(t, tt.requestBody)
			}

			req := httptest.NewRequest(http.MethodPost, "/api/patients", requestBody)
			if tt.compressRequest {
				req.Header.Set("Content-Encoding", "gzip")
			}
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}

			w := httptest.NewRecorder()
			GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

			res := w.Result()
			defer res.Body.Close()

			if res.StatusCode != tt.want.statusCode {
				t.Fatalf("status: got %d want %d", res.StatusCode, tt.want.statusCode)
			}
			if ce := res.Header.Get("Content-Encoding"); ce != tt.want.contentEncoding {
				t.Fatalf("content-encoding: got %q want %q", ce, tt.want.contentEncoding)
			}

			if tt.want.contentEncoding == "gzip" && !strings.Contains(res.Header.Get("Vary"), "Accept-Encoding") {
				t.Fatalf("vary: got %q, want Accept-Encoding", res.Header.Get("Vary"))
			}

			var reader io.Reader = res.Body
			if res.Header.Get("Content-Encoding") == "gzip" {
				gr, err := gzip.NewReader(res.Body)
				if err != nil {
					t.Fatalf("new gzip reader: %v", err)
				}
				defer gr.Close()
				reader = gr
			}

			body, err := io.ReadAll(reader)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if string(body) != tt.want.body {
				t.Fatalf("body: got %q want %q", string(body), tt.want.body)
			}
		})
	}
}

func TestGzipMiddleware_BrokenRequestBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/patients", strings.NewReader("not gzip"))
	req.Header.Set("Content-Encoding", "gzip")

	w := httptest.NewRecorder()
	GzipMiddleware(http.HandlerFunc(echoHandler)).ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d want %d", w.Code, http.StatusBadRequest)
	}
}
