package executor

import (
	"fmt"
	"strings"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/require"
)

func TestDiagnostics_BoundedToMostRecent(t *testing.T) {
	d := NewDiagnostics()

	for i := 0; i < 25; i++ {
		d.AddConsole("error", fmt.Sprintf("error %d", i))
		d.AddResponse(proto.NetworkRequestID(fmt.Sprintf("req-%d", i)), fmt.Sprintf("https://api.example.com/%d", i), 500, "Internal Server Error")
	}

	errs := d.ConsoleErrors(maxDiagnostics)
	require.Len(t, errs, 10)
	require.Equal(t, "error 15", errs[0].Text)
	require.Equal(t, "error 24", errs[9].Text)

	netErrs := d.NetworkErrors(maxDiagnostics)
	require.Len(t, netErrs, 10)
	require.Equal(t, "https://api.example.com/15", netErrs[0].URL)
	require.Equal(t, "https://api.example.com/24", netErrs[9].URL)
}

func TestDiagnostics_ConsoleErrorsOnlyCollectErrors(t *testing.T) {
	d := NewDiagnostics()
	d.AddConsole("log", "hello")
	d.AddConsole("warning", "careful")
	d.AddConsole("error", "boom")
	d.AddException("uncaught TypeError")

	require.Len(t, d.ConsoleLogs(0), 3)

	errs := d.ConsoleErrors(0)
	require.Len(t, errs, 2)
	require.Equal(t, "error", errs[0].Type)
	require.Equal(t, "exception", errs[1].Type)
}

func TestDiagnostics_ResponseClassification(t *testing.T) {
	d := NewDiagnostics()
	d.trackRequest("r1", "https://example.com/api/items", "POST")
	d.trackRequest("r2", "https://example.com/logo.png", "GET")
	d.trackRequest("r3", "https://example.com/missing", "GET")

	d.AddResponse("r1", "https://example.com/api/items", 200, "OK")
	d.AddResponse("r2", "https://example.com/logo.png", 200, "OK")
	d.AddResponse("r3", "https://example.com/missing", 404, "Not Found")

	reqs := d.Requests(0)
	// Asset URL excluded from the request log.
	require.Len(t, reqs, 2)
	require.Equal(t, "POST", reqs[0].Method)

	errs := d.NetworkErrors(0)
	require.Len(t, errs, 1)
	require.Equal(t, 404, errs[0].Status)
	require.Equal(t, "Not Found", errs[0].StatusText)
}

func TestDiagnostics_RequestFailed(t *testing.T) {
	d := NewDiagnostics()
	d.trackRequest("r1", "https://down.example.com/", "GET")
	d.AddRequestFailed("r1", "net::ERR_CONNECTION_REFUSED")
	d.AddRequestFailed("r2", "")

	errs := d.NetworkErrors(0)
	require.Len(t, errs, 2)
	require.Equal(t, "https://down.example.com/", errs[0].URL)
	require.Equal(t, "net::ERR_CONNECTION_REFUSED", errs[0].Failure)
	require.Equal(t, "Unknown error", errs[1].Failure)
}

func TestDiagnostics_LongURLsTruncated(t *testing.T) {
	d := NewDiagnostics()
	long := "https://example.com/" + strings.Repeat("a", 200)
	d.AddResponse("r1", long, 200, "OK")

	reqs := d.Requests(0)
	require.Len(t, reqs, 1)
	require.LessOrEqual(t, len(reqs[0].URL), 103)
}

func TestLastN(t *testing.T) {
	s := []int{1, 2, 3, 4, 5}
	require.Equal(t, []int{3, 4, 5}, lastN(s, 3))
	require.Equal(t, []int{1, 2, 3, 4, 5}, lastN(s, 10))
	require.Nil(t, lastN([]int{}, 3))
	require.Nil(t, lastN(s, 0))
}

func TestNormalizeScript(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"document.title", "() => (document.title)"},
		{"() => document.title", "() => document.title"},
		{"function() { return 1 }", "function() { return 1 }"},
		{"(a, b) => a + b", "(a, b) => a + b"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, normalizeScript(tt.in))
	}
}
