// Package gateway implements the Gateway Core component (spec §4.8): a
// Handler, registered per gateway name, that proxies its remaining
// pipeline segments to an upstream HTTP API, runs the configured opaque
// request/response transforms, and renders the result either through
// Link Detection (§4.9) for JSON, a diagnostic template for non-JSON
// text, or a data-URL wrapper for binary payloads — every page framed by
// a clickable debug header/footer breadcrumb.
//
// The retry/backoff shape follows the teacher's ToolExecutor.executeWithRetry
// (internal/tools/tool_executor.go): a fixed attempt count with exponential
// backoff, classifying failures as retryable or terminal before giving up.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	execerrors "github.com/jgavinray/urlexec/internal/errors"
	"github.com/jgavinray/urlexec/internal/linkdetect"
	"github.com/jgavinray/urlexec/internal/pathparser"
	"github.com/jgavinray/urlexec/internal/runctx"
	"github.com/jgavinray/urlexec/internal/store"
	"github.com/jgavinray/urlexec/internal/value"
)

// Config mirrors one named GatewayConfig (spec §3).
type Config struct {
	Name string

	// BaseURL is the upstream origin the target sub-path is appended to,
	// e.g. "https://jsonplaceholder.typicode.com".
	BaseURL string

	// BaseURLStrip/BaseURLStripRegex/GatewayPrefix feed Strategy 1 of Link
	// Detection (spec §4.9); exactly one of BaseURLStrip or
	// BaseURLStripRegex is normally set.
	BaseURLStrip      string
	BaseURLStripRegex *regexp.Regexp
	GatewayPrefix     string

	// RequestTransformCID/ResponseTransformCID name Store-resolved pipeline
	// bodies (spec §4.8 steps 4 and 6). Empty means "no transform".
	RequestTransformCID  store.CID
	ResponseTransformCID store.CID

	// Templates maps a template filename to its Store CID (spec §3); the
	// diagnostic and binary-wrapper templates below are built-in defaults
	// and do not require an entry here.
	Templates map[string]store.CID

	// LinkDetection configures §4.9 for this gateway's JSON responses.
	LinkDetection linkdetect.Config

	// ValidPathPatterns hints which upstream path segments are
	// "well-formed" for the debug breadcrumb's styling (spec §4.8).
	ValidPathPatterns []*regexp.Regexp

	UpstreamTimeout time.Duration
	RetryAttempts   int
	RetryBackoff    []time.Duration
}

// DefaultRetryBackoff matches spec §6's outbound retry policy: 3 attempts,
// 2s/4s/8s exponential backoff.
var DefaultRetryBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

// Handler is the runctx.Handler registered under a gateway's name.
type Handler struct {
	Cfg    Config
	Store  store.Store
	Client *http.Client
}

// New constructs a Handler with defaults filled in and an *http.Client
// sized to Cfg.UpstreamTimeout (spec §5: "60-second default timeout").
func New(cfg Config, st store.Store) Handler {
	if cfg.UpstreamTimeout == 0 {
		cfg.UpstreamTimeout = 60 * time.Second
	}
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if len(cfg.RetryBackoff) == 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	return Handler{
		Cfg:    cfg,
		Store:  st,
		Client: &http.Client{Timeout: cfg.UpstreamTimeout},
	}
}

// SideEffect classifies every gateway as external (spec §4.4): it talks to
// a system outside the Store/engine.
func (Handler) SideEffect() runctx.SideEffectClass { return runctx.SideEffectExternal }

// Invoke implements the seven-step algorithm of spec §4.8.
func (h Handler) Invoke(ec *runctx.ExecutionContext, remaining pathparser.Pipeline, _ value.Value) (value.Value, pathparser.Pipeline, error) {
	targetSubPath := remaining.String() // step 1: consume everything as S

	var query string
	method := http.MethodGet
	headers := value.NewHeader()
	var body []byte
	requestPath := "/" + h.Cfg.Name + targetSubPath
	var referrer string
	if ec.Req != nil {
		query = ec.Req.Query
		if ec.Req.Method != "" {
			method = ec.Req.Method
		}
		if ec.Req.RequestHeaders != nil {
			headers = ec.Req.RequestHeaders.Clone()
			referrer, _ = headers.Get("Referer")
		}
		body = ec.Req.Body
		requestPath = ec.Req.Path
	}

	if h.Cfg.RequestTransformCID != "" {
		out, err := h.runTransform(ec, h.Cfg.RequestTransformCID, requestTransformInput{
			Method:        method,
			Headers:       headerMap(headers),
			Body:          base64.StdEncoding.EncodeToString(body),
			TargetSubPath: targetSubPath,
		})
		if err != nil {
			return errValue(execerrors.Wrap(execerrors.ErrInternal, err)), nil, nil
		}
		var decoded requestTransformInput
		if jsonErr := json.Unmarshal(out.Output, &decoded); jsonErr == nil {
			if decoded.Method != "" {
				method = decoded.Method
			}
			if decoded.Headers != nil {
				headers = headersFromMap(decoded.Headers)
			}
			if decoded.TargetSubPath != "" {
				targetSubPath = decoded.TargetSubPath
			}
			if decoded.Body != "" {
				if raw, decErr := base64.StdEncoding.DecodeString(decoded.Body); decErr == nil {
					body = raw
				}
			}
		}
	}

	upstreamURL := h.Cfg.BaseURL + targetSubPath // step 3
	if query != "" {
		upstreamURL += "?" + query
	}

	status, respHeaders, respBody, upErr := h.doUpstream(ec.Ctx, method, upstreamURL, headers, body) // step 5
	if upErr != nil {
		page := h.wrapWithChrome(upstreamURL, referrer, diagnosticBody(0, "", upErr.Error()))
		return value.Text(page, "text/html; charset=utf-8", execerrors.ErrUpstreamError.Status), nil, nil
	}

	var rendered value.Value
	if h.Cfg.ResponseTransformCID != "" {
		out, err := h.runTransform(ec, h.Cfg.ResponseTransformCID, responseTransformInput{
			UpstreamStatus:  status,
			UpstreamHeaders: headerMap(respHeaders),
			UpstreamBody:    base64.StdEncoding.EncodeToString(respBody),
			RequestPath:     requestPath,
			GatewayConfig:   h.Cfg.Name,
		})
		if err != nil {
			return errValue(execerrors.Wrap(execerrors.ErrInternal, err)), nil, nil
		}
		rendered = out
	} else {
		rendered = h.renderStandard(requestPath, status, respHeaders, respBody) // step 7
	}

	page := h.wrapWithChrome(upstreamURL, referrer, rendered.String())
	return value.Text(page, "text/html; charset=utf-8", rendered.EffectiveStatus()), nil, nil
}

// requestTransformInput/requestTransformOutput share one shape: the
// transform pipeline receives it as JSON input and may return any subset
// of the same fields to override (spec §4.8 step 4).
type requestTransformInput struct {
	Method        string              `json:"method"`
	Headers       map[string][]string `json:"headers"`
	Body          string              `json:"body"` // base64
	TargetSubPath string              `json:"target_sub_path"`
}

// responseTransformInput is the JSON input to a response transform (spec
// §4.8 step 6); its output Value is used as the final rendered page
// verbatim, so the transform is responsible for producing HTML itself.
type responseTransformInput struct {
	UpstreamStatus  int                 `json:"upstream_status"`
	UpstreamHeaders map[string][]string `json:"upstream_headers"`
	UpstreamBody    string              `json:"upstream_body"` // base64
	RequestPath     string              `json:"request_path"`
	GatewayConfig   string              `json:"gateway_config"`
}

// runTransform resolves cid's stored pipeline body and executes it through
// ec.Runner with input JSON-encoded, in a depth-bounded child context.
func (h Handler) runTransform(ec *runctx.ExecutionContext, cid store.CID, input interface{}) (value.Value, error) {
	body, err := h.Store.Get(ec.Ctx, cid)
	if err != nil {
		return value.Value{}, err
	}
	child, ok := ec.Child()
	if !ok {
		return value.Value{}, execerrors.ErrDepthExceeded
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		return value.Value{}, err
	}
	in := value.Text(string(encoded), "application/json", 200)
	return ec.Runner.Run(child, pathparser.Parse(string(body)), in)
}

func headerMap(h *value.Header) map[string][]string {
	if h == nil {
		return nil
	}
	out := make(map[string][]string, len(h.Names()))
	for _, n := range h.Names() {
		v, _ := h.Get(n)
		out[n] = []string{v}
	}
	return out
}

func headersFromMap(m map[string][]string) *value.Header {
	h := value.NewHeader()
	for k, vs := range m {
		if len(vs) > 0 {
			h.Set(k, vs[0])
		}
	}
	return h
}

// doUpstream issues the upstream HTTP request with bounded retries (spec
// §6: 3 attempts, 2s/4s/8s backoff, retryable on 429/500/502/503/504),
// mirroring the teacher's executeWithRetry/isRetryable shape.
func (h Handler) doUpstream(ctx context.Context, method, rawURL string, headers *value.Header, body []byte) (status int, respHeaders *value.Header, respBody []byte, err error) {
	attempts := h.Cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := h.Cfg.RetryBackoff[minInt(attempt-1, len(h.Cfg.RetryBackoff)-1)]
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return 0, nil, nil, ctx.Err()
			}
		}

		req, buildErr := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
		if buildErr != nil {
			return 0, nil, nil, buildErr
		}
		if headers != nil {
			for _, name := range headers.Names() {
				v, _ := headers.Get(name)
				req.Header.Set(name, v)
			}
		}

		resp, doErr := h.Client.Do(req)
		if doErr != nil {
			lastErr = doErr
			if isRetryableNetErr(doErr) {
				continue
			}
			return 0, nil, nil, doErr
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if isRetryableStatus(resp.StatusCode) && attempt < attempts-1 {
			lastErr = fmt.Errorf("upstream returned %d", resp.StatusCode)
			continue
		}

		out := value.NewHeader()
		for k := range resp.Header {
			out.Set(k, resp.Header.Get(k))
		}
		return resp.StatusCode, out, data, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("gateway: upstream request failed after %d attempts", attempts)
	}
	return 0, nil, nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func isRetryableNetErr(err error) bool {
	if err == nil {
		return false
	}
	return !strings.Contains(err.Error(), context.Canceled.Error())
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// renderStandard implements spec §4.8 step 7: JSON upstream bodies go
// through Link Detection, non-JSON text bodies get a diagnostic template,
// and non-UTF-8 bodies are treated as binary and wrapped as a data URL.
func (h Handler) renderStandard(requestPath string, status int, respHeaders *value.Header, respBody []byte) value.Value {
	contentType := ""
	if respHeaders != nil {
		contentType, _ = respHeaders.Get("Content-Type")
	}

	if strings.Contains(contentType, "application/json") {
		rendered, err := linkdetect.Render(&linkdetect.Context{Cfg: h.Cfg.LinkDetection, RequestPath: requestPath}, respBody)
		if err != nil {
			return value.Text(diagnosticBody(status, contentType, err.Error()), "text/html; charset=utf-8", status)
		}
		return value.Text(`<pre class="json-body">`+rendered+`</pre>`, "text/html; charset=utf-8", status)
	}

	if !utf8.Valid(respBody) || strings.HasPrefix(contentType, "image/") || strings.HasPrefix(contentType, "application/octet-stream") {
		return value.Text(binaryBody(status, contentType, respBody), "text/html; charset=utf-8", status)
	}

	return value.Text(diagnosticBody(status, contentType, string(respBody)), "text/html; charset=utf-8", status)
}

func diagnosticBody(status int, contentType, body string) string {
	return fmt.Sprintf(
		`<div class="gateway-diagnostic"><p>status: %d</p><p>content-type: %s</p><pre>%s</pre></div>`,
		status, html.EscapeString(contentType), html.EscapeString(body),
	)
}

func binaryBody(status int, contentType string, body []byte) string {
	ct := contentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	dataURL := "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(body)
	return fmt.Sprintf(
		`<div class="gateway-binary"><p>status: %d</p><p>content-type: %s</p><img src="%s" alt="binary response"/></div>`,
		status, html.EscapeString(contentType), html.EscapeString(dataURL),
	)
}

// wrapWithChrome frames body with the debug header/footer breadcrumb spec
// §4.8 requires on every gateway-rendered page: the upstream URL as a
// segmented, clickable link trail, and the referrer similarly segmented.
func (h Handler) wrapWithChrome(upstreamURL, referrer, body string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"></head><body>`)
	b.WriteString(`<div class="gateway-debug-header">`)
	b.WriteString(h.breadcrumb(upstreamURL))
	b.WriteString(`</div>`)
	b.WriteString(body)
	b.WriteString(`<div class="gateway-debug-footer">`)
	if referrer != "" {
		b.WriteString(h.breadcrumb(referrer))
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

// breadcrumb renders rawURL's path as a sequence of clickable segment
// links, each cumulative href built from the segments before it. A
// segment matching ValidPathPatterns gets the "segment-valid" class;
// others get "segment-dim" but remain clickable (spec §4.8).
func (h Handler) breadcrumb(rawURL string) string {
	schemeSplit := strings.SplitN(rawURL, "://", 2)
	prefix := ""
	pathPart := rawURL
	if len(schemeSplit) == 2 {
		prefix = schemeSplit[0] + "://"
		hostAndPath := schemeSplit[1]
		if idx := strings.IndexByte(hostAndPath, '/'); idx >= 0 {
			prefix += hostAndPath[:idx]
			pathPart = hostAndPath[idx:]
		} else {
			prefix += hostAndPath
			pathPart = ""
		}
	}

	segments := pathparser.Parse(pathPart)
	var b strings.Builder
	fmt.Fprintf(&b, `<a href="%s" class="segment-valid">%s</a>`, html.EscapeString(prefix+"/"), html.EscapeString(prefix))

	cumulative := ""
	for _, seg := range segments {
		cumulative += "/" + string(seg)
		class := "segment-dim"
		if h.segmentValid(string(seg)) {
			class = "segment-valid"
		}
		fmt.Fprintf(&b, `<a href="%s" class="%s">/%s</a>`, html.EscapeString(prefix+cumulative), class, html.EscapeString(string(seg)))
	}
	return b.String()
}

func (h Handler) segmentValid(segment string) bool {
	for _, re := range h.Cfg.ValidPathPatterns {
		if re.MatchString(segment) {
			return true
		}
	}
	return false
}

func errValue(err *execerrors.ExecutorError) value.Value {
	return value.Text(err.Message, "text/plain; charset=utf-8", err.Status)
}
