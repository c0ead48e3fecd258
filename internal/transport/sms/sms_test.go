package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/repairhub/notify/pkg/errors"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		body string
		max  int
		want string
	}{
		{"short untouched", "pick up your phone", 160, "pick up your phone"},
		{"exact length untouched", "abcde", 5, "abcde"},
		{"cut with ellipsis", "abcdef", 5, "abcd…"},
		{"multibyte counted as runes", "héllo wörld", 7, "héllo …"},
		{"zero max", "abc", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Truncate(tt.body, tt.max))
		})
	}
}

func TestSendRejectsNonE164(t *testing.T) {
	a := NewAdapter(Config{BaseURL: "http://unused"})

	for _, dest := range []string{"", "0712345678", "+0123", "555-123-4567", "+1 555 123"} {
		_, err := a.Send(context.Background(), dest, "", "hello")
		require.Error(t, err, dest)
		assert.True(t, apperrors.IsPermanent(err), dest)
		assert.Equal(t, "invalid_number", apperrors.ProviderCode(err), dest)
	}
}

func gatewayStub(t *testing.T, status int, resp sendResponse, gotBody *sendRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if gotBody != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(gotBody))
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestSendSuccess(t *testing.T) {
	var got sendRequest
	srv := gatewayStub(t, http.StatusOK, sendResponse{MessageID: "sm-42", Status: "queued", CostCents: 4}, &got)
	defer srv.Close()

	a := NewAdapter(Config{BaseURL: srv.URL, APIKey: "test-key", Sender: "RepairHub"})
	result, err := a.Send(context.Background(), "+15551234567", "", "repair done")

	require.NoError(t, err)
	assert.Equal(t, "sm-42", result.ProviderMessageID)
	assert.Equal(t, 4, result.CostCents)
	assert.Equal(t, "+15551234567", got.To)
	assert.Equal(t, "RepairHub", got.From)
	assert.Equal(t, "repair done", got.Body)
}

func TestSendTruncatesLongBody(t *testing.T) {
	var got sendRequest
	srv := gatewayStub(t, http.StatusOK, sendResponse{MessageID: "sm-1"}, &got)
	defer srv.Close()

	long := ""
	for i := 0; i < 200; i++ {
		long += "x"
	}

	a := NewAdapter(Config{BaseURL: srv.URL, APIKey: "test-key", MaxBodyLen: 160})
	_, err := a.Send(context.Background(), "+15551234567", "", long)

	require.NoError(t, err)
	assert.Equal(t, 160, len([]rune(got.Body)))
}

func TestSendClassifiesGatewayErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		resp      sendResponse
		transient bool
		bounce    bool
		code      string
	}{
		{"throttled", http.StatusTooManyRequests, sendResponse{Message: "slow down"}, true, false, "throttled"},
		{"server error", http.StatusBadGateway, sendResponse{ErrorCode: "upstream_down"}, true, false, "upstream_down"},
		{"invalid number", http.StatusBadRequest, sendResponse{ErrorCode: "invalid_number"}, false, false, "invalid_number"},
		{"opted out", http.StatusBadRequest, sendResponse{ErrorCode: "opted_out"}, false, true, "opted_out"},
		{"unknown 4xx", http.StatusUnprocessableEntity, sendResponse{}, false, false, "http_422"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := gatewayStub(t, tt.status, tt.resp, nil)
			defer srv.Close()

			a := NewAdapter(Config{BaseURL: srv.URL, APIKey: "test-key"})
			_, err := a.Send(context.Background(), "+15551234567", "", "hello")

			require.Error(t, err)
			assert.Equal(t, tt.transient, apperrors.IsTransient(err))
			assert.Equal(t, !tt.transient, apperrors.IsPermanent(err))
			assert.Equal(t, tt.bounce, apperrors.IsBounce(err))
			assert.Equal(t, tt.code, apperrors.ProviderCode(err))
		})
	}
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := gatewayStub(t, http.StatusBadGateway, sendResponse{ErrorCode: "upstream_down"}, nil)
	defer srv.Close()

	a := NewAdapter(Config{BaseURL: srv.URL, APIKey: "test-key"})
	for i := 0; i < 5; i++ {
		_, err := a.Send(context.Background(), "+15551234567", "", "hello")
		require.Error(t, err)
	}

	_, err := a.Send(context.Background(), "+15551234567", "", "hello")
	require.Error(t, err)
	assert.Equal(t, "circuit_open", apperrors.ProviderCode(err))
}
