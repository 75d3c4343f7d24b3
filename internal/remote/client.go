// Package remote is the only place the console talks HTTP to the control plane.
// Its exported operations never panic and never surface transport errors to
// callers: a failed read is nil, a failed write is false.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "remote")

// TokenSource supplies the bearer token for each request; "" sends none.
type TokenSource interface {
	Token() string
}

// Options configures a Client.
type Options struct {
	BaseURL      string        // explicit base address; wins when set
	Origin       string        // used to derive the base when BaseURL is empty
	FallbackPort int           // port paired with Origin's host
	Timeout      time.Duration // per-request bound
	Tokens       TokenSource
	UserAgent    string
}

// Client wraps a resty client with the console's no-cache, no-throw contract.
type Client struct {
	opts Options

	baseOnce sync.Once
	base     string

	client *resty.Client

	mu             sync.RWMutex
	onUnauthorized []func()

	seq atomic.Uint64
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.FallbackPort == 0 {
		opts.FallbackPort = 8000
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "botdash"
	}
	c := &Client{opts: opts}
	// polling is the retry; a failed request simply waits for the next tick
	c.client = resty.New().
		SetBaseURL(c.BaseURL()).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", opts.UserAgent)
	return c
}

// BaseURL resolves the control plane address once per process lifetime.
func (c *Client) BaseURL() string {
	c.baseOnce.Do(func() {
		c.base = ResolveBaseURL(c.opts.BaseURL, c.opts.Origin, c.opts.FallbackPort)
		log.Infof("control plane base url: %s", c.base)
	})
	return c.base
}

// ResolveBaseURL returns explicit when set, else origin's scheme and hostname on the given port.
func ResolveBaseURL(explicit, origin string, port int) string {
	if s := strings.TrimRight(strings.TrimSpace(explicit), "/"); s != "" {
		return s
	}
	if port <= 0 {
		port = 8000
	}
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Hostname() == "" {
		return fmt.Sprintf("http://localhost:%d", port)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := u.Hostname()
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// OnUnauthorized registers a hook run when an authenticated request gets 401.
func (c *Client) OnUnauthorized(fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUnauthorized = append(c.onUnauthorized, fn)
}

func (c *Client) fireUnauthorized() {
	c.mu.RLock()
	hooks := append([]func(){}, c.onUnauthorized...)
	c.mu.RUnlock()
	for _, fn := range hooks {
		fn()
	}
}

// RequestOptions for Do.
type RequestOptions struct {
	Query     map[string]string
	Body      any
	Anonymous bool // do not attach the session token; a 401 does not invalidate the session
}

// Response is the status and raw body of a completed exchange.
type Response struct {
	Status int
	Body   []byte
}

func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// newRequest sets the per-request headers; never touch client-level headers here.
func (c *Client) newRequest(ctx context.Context, opt *RequestOptions) *resty.Request {
	r := c.client.R().SetContext(ctx)
	r.SetHeader("Cache-Control", "no-cache, no-store")
	r.SetHeader("Pragma", "no-cache")
	r.SetHeader("X-Request-ID", uuid.NewString())
	// defeat any intermediary cache keyed on the URL
	r.SetQueryParam("_ts", strconv.FormatInt(time.Now().UnixNano(), 36)+"-"+strconv.FormatUint(c.seq.Add(1), 36))
	if opt == nil {
		opt = &RequestOptions{}
	}
	if !opt.Anonymous && c.opts.Tokens != nil {
		if tok := c.opts.Tokens.Token(); tok != "" {
			r.SetAuthToken(tok)
		}
	}
	for k, v := range opt.Query {
		r.SetQueryParam(k, v)
	}
	if opt.Body != nil {
		r.SetHeader("Content-Type", "application/json")
		r.SetBody(opt.Body)
	}
	return r
}

// Do performs one request bounded by the client timeout. Transport failures
// come back as errors; any HTTP status is a Response.
func (c *Client) Do(ctx context.Context, method, path string, opt *RequestOptions) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	rc := c.newRequest(ctx, opt)
	var (
		resp *resty.Response
		err  error
	)
	switch strings.ToUpper(method) {
	case http.MethodGet:
		resp, err = rc.Get(path)
	case http.MethodPost:
		resp, err = rc.Post(path)
	case http.MethodPut:
		resp, err = rc.Put(path)
	case http.MethodDelete:
		resp, err = rc.Delete(path)
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	out := &Response{Status: resp.StatusCode(), Body: resp.Body()}
	if out.Status == http.StatusUnauthorized && (opt == nil || !opt.Anonymous) {
		log.Warnf("%s %s: 401, session rejected", method, path)
		c.fireUnauthorized()
	}
	return out, nil
}

// HTTPError shapes a non-2xx response as an error.
func HTTPError(resp *Response) error {
	if resp == nil {
		return errors.New("http: no response")
	}
	if resp.OK() {
		return nil
	}
	return errors.Errorf("http %d: %s", resp.Status, strings.TrimSpace(string(resp.Body)))
}

// Fetch GETs path and decodes the body into T. It returns nil on transport
// failure, non-2xx status or a body that does not decode.
func Fetch[T any](ctx context.Context, c *Client, path string, query map[string]string) (out *T) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("fetch %s: panic: %v", path, r)
			out = nil
		}
	}()
	resp, err := c.Do(ctx, http.MethodGet, path, &RequestOptions{Query: query})
	if err != nil {
		log.Warnf("fetch %s: %v", path, err)
		return nil
	}
	if !resp.OK() {
		log.Warnf("fetch %s: %v", path, HTTPError(resp))
		return nil
	}
	var v T
	if err := json.Unmarshal(resp.Body, &v); err != nil {
		log.Warnf("fetch %s: decode: %v", path, err)
		return nil
	}
	return &v
}

// PostJSON POSTs body and reports whether the server answered 2xx.
func (c *Client) PostJSON(ctx context.Context, path string, body any) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("post %s: panic: %v", path, r)
			ok = false
		}
	}()
	resp, err := c.Do(ctx, http.MethodPost, path, &RequestOptions{Body: body})
	if err != nil {
		log.Warnf("post %s: %v", path, err)
		return false
	}
	if !resp.OK() {
		log.Warnf("post %s: %v", path, HTTPError(resp))
		return false
	}
	return true
}
