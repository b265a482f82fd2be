package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTokenFromRequest(t *testing.T) {
	testCases := []struct {
		name      string
		target    string
		header    string
		wantToken string
		wantErr   error
	}{
		{name: "bearer header", target: "/markers", header: "Bearer abc", wantToken: "abc"},
		{name: "header wins over query", target: "/events?access_token=query", header: "Bearer header", wantToken: "header"},
		{name: "query parameter", target: "/events?access_token=query", wantToken: "query"},
		{name: "basic scheme", target: "/markers", header: "Basic Zm9vOmJhcg==", wantErr: ErrMalformedAuthValue},
		{name: "empty bearer", target: "/markers", header: "Bearer   ", wantErr: ErrMissingToken},
		{name: "nothing", target: "/markers", wantErr: ErrMissingToken},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, testCase.target, http.NoBody)
			if testCase.header != "" {
				request.Header.Set("Authorization", testCase.header)
			}
			token, err := TokenFromRequest(request)
			if testCase.wantErr != nil {
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("expected %v, got %v", testCase.wantErr, err)
				}
				return
			}
			if err != nil || token != testCase.wantToken {
				t.Fatalf("expected %q, got %q err=%v", testCase.wantToken, token, err)
			}
		})
	}

	if _, err := TokenFromRequest(nil); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken for nil request, got %v", err)
	}
}
