package executor

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// maxDiagnostics bounds the console and network error slices attached to a
// final result.
const maxDiagnostics = 10

// ConsoleEntry is one captured console message or uncaught page exception.
type ConsoleEntry struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// NetworkError is a failed request or an HTTP error response.
type NetworkError struct {
	URL        string `json:"url"`
	Method     string `json:"method,omitempty"`
	Status     int    `json:"status,omitempty"`
	StatusText string `json:"statusText,omitempty"`
	Failure    string `json:"failure,omitempty"`
}

// NetworkRequest is one completed non-asset request, for the inspect view.
type NetworkRequest struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
	Method string `json:"method"`
}

// assetPattern filters static assets out of the request log to reduce noise.
var assetPattern = regexp.MustCompile(`\.(png|jpg|jpeg|gif|svg|css|woff2?|ttf|ico)(\?|$)`)

// Diagnostics accumulates console and network activity for the lifetime of a
// page within one driver invocation.
type Diagnostics struct {
	mu       sync.Mutex
	logs     []ConsoleEntry
	errs     []ConsoleEntry
	requests []NetworkRequest
	netErrs  []NetworkError
	inflight map[proto.NetworkRequestID]requestInfo
}

type requestInfo struct {
	url    string
	method string
}

// NewDiagnostics returns an empty collector.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{inflight: make(map[proto.NetworkRequestID]requestInfo)}
}

// Watch subscribes to the page's console, exception, and network events until
// ctx is cancelled.
func (d *Diagnostics) Watch(ctx context.Context, page *rod.Page) {
	p := page.Context(ctx)
	wait := p.EachEvent(
		func(ev *proto.RuntimeConsoleAPICalled) {
			d.AddConsole(string(ev.Type), stringifyConsoleArgs(ev.Args))
		},
		func(ev *proto.RuntimeExceptionThrown) {
			d.AddException(exceptionText(ev.ExceptionDetails))
		},
		func(ev *proto.NetworkRequestWillBeSent) {
			if ev.Request == nil {
				return
			}
			d.trackRequest(ev.RequestID, ev.Request.URL, ev.Request.Method)
		},
		func(ev *proto.NetworkResponseReceived) {
			if ev.Response == nil {
				return
			}
			d.AddResponse(ev.RequestID, ev.Response.URL, ev.Response.Status, ev.Response.StatusText)
		},
		func(ev *proto.NetworkLoadingFailed) {
			d.AddRequestFailed(ev.RequestID, ev.ErrorText)
		},
	)
	go wait()
}

// AddConsole records a console message; error-level entries are also kept in
// the error slice.
func (d *Diagnostics) AddConsole(typ, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	entry := ConsoleEntry{Type: typ, Text: text}
	d.logs = append(d.logs, entry)
	if typ == "error" {
		d.errs = append(d.errs, entry)
	}
}

// AddException records an uncaught page exception.
func (d *Diagnostics) AddException(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errs = append(d.errs, ConsoleEntry{Type: "exception", Text: text})
}

func (d *Diagnostics) trackRequest(id proto.NetworkRequestID, url, method string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight[id] = requestInfo{url: url, method: method}
}

// AddResponse records a completed response. Responses with status >= 400 also
// count as network errors; asset URLs are excluded from the request log.
func (d *Diagnostics) AddResponse(id proto.NetworkRequestID, url string, status int, statusText string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if status >= 400 {
		d.netErrs = append(d.netErrs, NetworkError{URL: url, Status: status, StatusText: statusText})
	}
	if !assetPattern.MatchString(url) {
		d.requests = append(d.requests, NetworkRequest{
			URL:    truncate(url, 100),
			Status: status,
			Method: d.inflight[id].method,
		})
	}
	delete(d.inflight, id)
}

// AddRequestFailed records a request that never completed.
func (d *Diagnostics) AddRequestFailed(id proto.NetworkRequestID, errorText string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := d.inflight[id]
	if errorText == "" {
		errorText = "Unknown error"
	}
	d.netErrs = append(d.netErrs, NetworkError{URL: info.url, Method: info.method, Failure: errorText})
	delete(d.inflight, id)
}

// ConsoleLogs returns the most recent n console messages; n <= 0 means all.
func (d *Diagnostics) ConsoleLogs(n int) []ConsoleEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lastN(d.logs, bound(n, len(d.logs)))
}

// ConsoleErrors returns the most recent n console errors and exceptions;
// n <= 0 means all.
func (d *Diagnostics) ConsoleErrors(n int) []ConsoleEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lastN(d.errs, bound(n, len(d.errs)))
}

// Requests returns the most recent n non-asset requests; n <= 0 means all.
func (d *Diagnostics) Requests(n int) []NetworkRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lastN(d.requests, bound(n, len(d.requests)))
}

// NetworkErrors returns the most recent n network errors; n <= 0 means all.
func (d *Diagnostics) NetworkErrors(n int) []NetworkError {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lastN(d.netErrs, bound(n, len(d.netErrs)))
}

func bound(n, total int) int {
	if n <= 0 {
		return total
	}
	return n
}

func lastN[T any](s []T, n int) []T {
	if n <= 0 || len(s) == 0 {
		return nil
	}
	if len(s) > n {
		s = s[len(s)-n:]
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

func exceptionText(details *proto.RuntimeExceptionDetails) string {
	if details == nil {
		return "unknown exception"
	}
	if details.Exception != nil && details.Exception.Description != "" {
		return details.Exception.Description
	}
	return details.Text
}
