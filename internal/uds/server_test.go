package uds

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) (*Server, *Client) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), DefaultSocketName)
	srv := NewServer(socketPath)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })

	return srv, NewClient(socketPath)
}

func TestServer_RoundTrip(t *testing.T) {
	srv, client := startServer(t)

	srv.Handle("echo", func(req *Request) *Response {
		var params map[string]string
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return ErrorResponse(ErrCodeValidation, err.Error())
		}
		return SuccessResponse(params)
	})

	resp, err := client.SendCommand("echo", map[string]string{"plan_id": "plan_001_01"})
	require.NoError(t, err)
	require.True(t, resp.Success)

	var data map[string]string
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "plan_001_01", data["plan_id"])
}

func TestServer_EchoesRequestID(t *testing.T) {
	srv, client := startServer(t)

	srv.Handle("ping", func(req *Request) *Response {
		return SuccessResponse(map[string]string{"status": "ok"})
	})

	req, err := NewRequest("ping", nil)
	require.NoError(t, err)
	require.NotEmpty(t, req.RequestID)

	resp, err := client.Send(req)
	require.NoError(t, err)
	assert.Equal(t, req.RequestID, resp.RequestID)
}

func TestServer_UnknownCommand(t *testing.T) {
	_, client := startServer(t)

	resp, err := client.SendCommand("nonsense", nil)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnknownCommand, resp.Error.Code)
}

func TestServer_ProtocolMismatch(t *testing.T) {
	srv, client := startServer(t)

	srv.Handle("ping", func(req *Request) *Response {
		return SuccessResponse(nil)
	})

	resp, err := client.Send(&Request{ProtocolVersion: 99, Command: "ping"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeProtocolMismatch, resp.Error.Code)
}
