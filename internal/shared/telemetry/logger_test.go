package telemetry

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	return strings.TrimSpace(buf.String())
}

func TestInfoWritesJSONLine(t *testing.T) {
	out := captureStdout(t, func() {
		Info("document.status", map[string]any{
			"document_id":       "doc-1",
			"status_transition": "uploaded->processing",
		})
	})

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Equal(t, "info", payload["level"])
	require.Equal(t, "document.status", payload["msg"])
	require.Equal(t, "doc-1", payload["document_id"])
	require.Equal(t, "uploaded->processing", payload["status_transition"])
	require.NotEmpty(t, payload["ts"])
}

func TestErrorStringifiesErrors(t *testing.T) {
	out := captureStdout(t, func() {
		Error("mail.send_failed", map[string]any{"error": io.ErrUnexpectedEOF})
	})

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Equal(t, "error", payload["level"])
	require.Equal(t, io.ErrUnexpectedEOF.Error(), payload["error"])
}
