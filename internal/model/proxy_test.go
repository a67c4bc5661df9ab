package model

import (
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestProxyResponse_HasBody(t *testing.T) {
	tests := []struct {
		name string
		resp ProxyResponse
		want bool
	}{
		{"nil body", ProxyResponse{ContentLength: -1}, false},
		{"NoBody", ProxyResponse{Body: http.NoBody, ContentLength: -1}, false},
		{"zero length", ProxyResponse{Body: io.NopCloser(strings.NewReader("")), ContentLength: 0}, false},
		{"unknown length", ProxyResponse{Body: io.NopCloser(strings.NewReader("x")), ContentLength: -1}, true},
		{"known length", ProxyResponse{Body: io.NopCloser(strings.NewReader("abc")), ContentLength: 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.resp.HasBody(); got != tt.want {
				t.Errorf("HasBody() = %v, want %v", got, tt.want)
			}
		})
	}
}
