// Package odoo talks to an Odoo accounting backend over XML-RPC.
package odoo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/rpc"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kolo/xmlrpc"

	"github.com/eshaffer321/mercury-odoo-sync/internal/domain/accounting"
)

// Config identifies the backend and the credentials used for every call.
type Config struct {
	URL      string
	Database string
	Username string
	APIKey   string
	Timeout  time.Duration
}

// Client executes model methods through /xmlrpc/2/object. The user id is
// resolved lazily through /xmlrpc/2/common and cached.
type Client struct {
	cfg    Config
	common *xmlrpc.Client
	object *xmlrpc.Client
	logger *slog.Logger

	mu  sync.Mutex
	uid int64
}

// NewClient builds the common and object endpoints. No request is made until
// the first call.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("odoo URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	base := strings.TrimRight(cfg.URL, "/")
	transport := newTransport(cfg.Timeout)

	common, err := xmlrpc.NewClient(base+"/xmlrpc/2/common", transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create odoo common client: %w", err)
	}
	object, err := xmlrpc.NewClient(base+"/xmlrpc/2/object", transport)
	if err != nil {
		_ = common.Close()
		return nil, fmt.Errorf("failed to create odoo object client: %w", err)
	}

	return &Client{
		cfg:    cfg,
		common: common,
		object: object,
		logger: logger,
	}, nil
}

func newTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
	}
}

// Close releases both endpoints
func (c *Client) Close() error {
	return errors.Join(c.common.Close(), c.object.Close())
}

// Authenticate resolves and caches the user id.
func (c *Client) Authenticate(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.uid != 0 {
		return c.uid, nil
	}

	var result interface{}
	args := []interface{}{c.cfg.Database, c.cfg.Username, c.cfg.APIKey, map[string]interface{}{}}
	if err := call(ctx, c.common, "authenticate", args, &result); err != nil {
		return 0, fmt.Errorf("odoo authentication failed: %w", err)
	}

	uid, ok := asInt64(result)
	if !ok || uid == 0 {
		return 0, fmt.Errorf("odoo authentication failed: invalid credentials for %s", c.cfg.Username)
	}

	c.uid = uid
	c.logger.Debug("authenticated with odoo", "uid", uid, "database", c.cfg.Database)
	return uid, nil
}

// Execute runs model.method(*args, **kwargs) and returns the decoded result:
// map[string]interface{}, []interface{}, int64, float64, string or bool.
func (c *Client) Execute(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	uid, err := c.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}

	start := time.Now()
	var result interface{}
	params := []interface{}{c.cfg.Database, uid, c.cfg.APIKey, model, method, args, kwargs}
	err = call(ctx, c.object, "execute_kw", params, &result)

	c.logger.Debug("odoo call",
		"model", model,
		"method", method,
		"duration", time.Since(start),
		"error", err)

	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", model, method, err)
	}
	return result, nil
}

// call issues an XML-RPC request that gives up when ctx is done. The codec
// writes requests synchronously, so the send itself runs in a goroutine.
func call(ctx context.Context, client *xmlrpc.Client, method string, args []interface{}, reply interface{}) error {
	done := make(chan *rpc.Call, 1)
	go client.Go(method, args, reply, done)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-done:
		return toFault(res.Error)
	}
}

var faultPattern = regexp.MustCompile(`(?s)^Fault\((-?\d+)\): (.*)$`)

// toFault converts XML-RPC faults into *accounting.Fault. Faults can surface
// either as xmlrpc.FaultError or flattened into an rpc.ServerError string.
func toFault(err error) error {
	if err == nil {
		return nil
	}

	var fe xmlrpc.FaultError
	if errors.As(err, &fe) {
		return &accounting.Fault{Code: fe.Code, Message: fe.String}
	}
	var fep *xmlrpc.FaultError
	if errors.As(err, &fep) && fep != nil {
		return &accounting.Fault{Code: fep.Code, Message: fep.String}
	}

	var se rpc.ServerError
	if errors.As(err, &se) {
		if m := faultPattern.FindStringSubmatch(string(se)); m != nil {
			code, _ := strconv.Atoi(m[1])
			return &accounting.Fault{Code: code, Message: m[2]}
		}
		return &accounting.Fault{Message: string(se)}
	}
	return err
}
