package connapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/nccheck/errors"
)

type stagedRequest struct {
	method string
	path   string
	body   map[string]any
}

// recordingServer captures staged PATCH requests and answers with status.
func recordingServer(t *testing.T, status int, requests *[]stagedRequest) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*requests = append(*requests, stagedRequest{
			method: r.Method,
			path:   r.URL.EscapedPath(),
			body:   body,
		})
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"activation":{"mode":"activate_immediate"}}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestReceiverDriverActivate(t *testing.T) {
	var requests []stagedRequest
	server := recordingServer(t, http.StatusOK, &requests)

	client, err := NewClient(server.URL+"/x-nmos/connection/v1.1/", Options{})
	require.NoError(t, err)

	driver := ReceiverDriver{Client: client, SDP: "v=0\r\no=- 0 0 IN IP4 239.0.0.1\r\n"}
	require.NoError(t, driver.Activate(context.Background(), "a1b2c3d4"))

	require.Len(t, requests, 1)
	got := requests[0]
	assert.Equal(t, http.MethodPatch, got.method)
	assert.Equal(t, "/x-nmos/connection/v1.1/single/receivers/a1b2c3d4/staged", got.path)
	assert.Equal(t, true, got.body["master_enable"])
	assert.NotEmpty(t, got.body["sender_id"])

	transportFile, ok := got.body["transport_file"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "application/sdp", transportFile["type"])
	assert.Equal(t, driver.SDP, transportFile["data"])
}

func TestReceiverDriverDeactivate(t *testing.T) {
	var requests []stagedRequest
	server := recordingServer(t, http.StatusOK, &requests)

	client, err := NewClient(server.URL, Options{})
	require.NoError(t, err)

	require.NoError(t, ReceiverDriver{Client: client}.Deactivate(context.Background(), "a1b2c3d4"))

	require.Len(t, requests, 1)
	assert.Equal(t, false, requests[0].body["master_enable"])
	assert.Nil(t, requests[0].body["sender_id"])
	assert.NotContains(t, requests[0].body, "transport_file")
}

func TestSenderDriver(t *testing.T) {
	var requests []stagedRequest
	server := recordingServer(t, http.StatusOK, &requests)

	client, err := NewClient(server.URL, Options{})
	require.NoError(t, err)

	driver := SenderDriver{Client: client}
	require.NoError(t, driver.Activate(context.Background(), "s1"))
	require.NoError(t, driver.Deactivate(context.Background(), "s1"))

	require.Len(t, requests, 2)
	assert.Equal(t, "/single/senders/s1/staged", requests[0].path)
	assert.Equal(t, true, requests[0].body["master_enable"])
	assert.Equal(t, false, requests[1].body["master_enable"])
	assert.NotContains(t, requests[0].body, "transport_file")
}

func TestPatchStagedHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusLocked)
		_, _ = w.Write([]byte(`{"code":423,"error":"resource locked"}`))
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, Options{})
	require.NoError(t, err)

	err = SenderDriver{Client: client}.Activate(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, errors.IsProtocolError(err))
	assert.Contains(t, err.Error(), "423")
	assert.Contains(t, err.Error(), "resource locked")
}

func TestPatchStagedUnreachable(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1", Options{})
	require.NoError(t, err)

	err = SenderDriver{Client: client}.Deactivate(context.Background(), "s1")
	assert.Error(t, err)
}

func TestResourceIDEscaping(t *testing.T) {
	var requests []stagedRequest
	server := recordingServer(t, http.StatusOK, &requests)

	client, err := NewClient(server.URL, Options{})
	require.NoError(t, err)

	require.NoError(t, SenderDriver{Client: client}.Activate(context.Background(), "a/b"))
	require.Len(t, requests, 1)
	assert.Equal(t, "/single/senders/a%2Fb/staged", requests[0].path)
}
