// Package binding loads XML and YAML documents into Go object graphs and
// advertises their roots in a Habitat.
package binding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/centraunit/habitat"
	"github.com/centraunit/habitat/config"
)

var (
	ErrUnsupportedFormat = errors.New("binding: unsupported document format")
	ErrEmptyHandle       = errors.New("binding: handle has no root")
)

// RootHandle is a loaded document. Root is a pointer of type Type, or nil
// for an empty handle.
type RootHandle struct {
	Root    any
	Type    reflect.Type
	Locator string
}

// Empty reports whether the handle carries no root.
func (h *RootHandle) Empty() bool {
	return h == nil || h.Root == nil
}

// EmptyHandle returns a handle for t with no root.
func EmptyHandle(t reflect.Type) *RootHandle {
	return &RootHandle{Type: t}
}

// Service binds documents. Concurrent loads of the same locator and type
// share one read and one decoded root.
type Service struct {
	client  *http.Client
	timeout time.Duration
	log     *logrus.Entry
	sf      singleflight.Group
}

type Option func(*Service)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		s.client = c
	}
}

// WithTimeout bounds loading one document. Zero means no bound beyond the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

func WithLogger(entry *logrus.Entry) Option {
	return func(s *Service) {
		s.log = entry
	}
}

func New(opts ...Option) *Service {
	s := &Service{
		client:  http.DefaultClient,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	s.log = s.log.WithField("component", "binding")
	return s
}

// NewFromConfig creates a Service with the configured load timeout.
func NewFromConfig(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	return New(append([]Option{WithTimeout(cfg.Binding.Timeout)}, opts...)...)
}

// BindRoot reads the document at locator and decodes it into a new value
// of t, which must be a pointer to a struct. locator is a file path, a
// file:// URL or an http(s):// URL; the format follows its extension.
// Concurrent binds of the same root share one load. A caller whose ctx
// ends stops waiting without failing the others.
func (s *Service) BindRoot(ctx context.Context, locator string, t reflect.Type) (*RootHandle, error) {
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("binding %s: root type %v is not a pointer to a struct", locator, t)
	}
	decode, err := decoderFor(locator)
	if err != nil {
		return nil, err
	}

	// the load is shared, so it must outlive any single caller
	shared := context.WithoutCancel(ctx)
	key := t.String() + "|" + locator
	ch := s.sf.DoChan(key, func() (any, error) {
		ctx := shared
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}

		data, err := s.read(ctx, locator)
		if err != nil {
			return nil, err
		}
		root := reflect.New(t.Elem()).Interface()
		if err := decode(data, root); err != nil {
			return nil, fmt.Errorf("binding %s: decode: %w", locator, err)
		}
		return root, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("binding %s: %w", locator, ctx.Err())
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	s.log.WithFields(logrus.Fields{
		"locator": locator,
		"type":    t.String(),
		"shared":  res.Shared,
	}).Debug("bound document root")
	return &RootHandle{Root: res.Val, Type: t, Locator: locator}, nil
}

// BindRoot is the typed form of Service.BindRoot.
func BindRoot[T any](ctx context.Context, s *Service, locator string) (T, *RootHandle, error) {
	var zero T
	handle, err := s.BindRoot(ctx, locator, habitat.TypeOf[T]())
	if err != nil {
		return zero, nil, err
	}
	return handle.Root.(T), handle, nil
}

// Advertise registers the handle's root in h under its type, its runtime
// type and the contracts it implements.
func Advertise(h *habitat.Habitat, handle *RootHandle, name string) (habitat.Provider, error) {
	if handle.Empty() {
		return nil, ErrEmptyHandle
	}
	p, err := h.AddInstance(handle.Root, name, handle.Type)
	if err != nil {
		return nil, fmt.Errorf("advertising %s: %w", handle.Locator, err)
	}
	return p, nil
}

func (s *Service) read(ctx context.Context, locator string) ([]byte, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// plain path, including windows drive letters
		return readFile(ctx, locator)
	}

	switch u.Scheme {
	case "file":
		return readFile(ctx, u.Path)
	case "http", "https":
		return s.fetch(ctx, locator)
	default:
		return nil, fmt.Errorf("binding %s: unsupported scheme %q", locator, u.Scheme)
	}
}

func readFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", name, err)
	}
	return data, nil
}

func (s *Service) fetch(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", locator, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("binding %s: unexpected status %s", locator, resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", locator, err)
	}
	return data, nil
}

func extension(locator string) string {
	p := locator
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		p = u.Path
	}
	return strings.ToLower(path.Ext(p))
}
