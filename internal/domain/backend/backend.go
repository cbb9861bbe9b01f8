// Package backend exposes the Ambrosia REST resources the gateway reads.
package backend

import (
	"context"
	"net/http"

	"ambrosia-pos-gateway/internal/domain/apiclient"
	"ambrosia-pos-gateway/internal/domain/modules"
	"ambrosia-pos-gateway/internal/domain/session"
	"ambrosia-pos-gateway/internal/platform/errors"
)

const (
	PathInitialSetup   = "/initial-setup"
	PathConfig         = "/config"
	PathLogin          = "/auth/login"
	PathTickets        = "/tickets"
	PathOrders         = "/orders"
	PathPayments       = "/payments"
	PathPaymentMethods = "/payment-methods"
	PathProducts       = "/products"
	PathUsers          = "/users"
	PathOpenShift      = "/shifts/open"
)

// Client wraps the API client with typed calls.
type Client struct {
	api *apiclient.Client
}

func New(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// API returns the underlying client.
func (c *Client) API() *apiclient.Client {
	return c.api
}

// passthrough options forward the browser's cookies and never notify or refresh.
func passthrough(cookie string) apiclient.Options {
	h := http.Header{}
	if cookie != "" {
		h.Set("Cookie", cookie)
	}
	return apiclient.Options{Headers: h, Silent: true, SkipRefresh: true}
}

// InitialSetup reads the onboarding state. A 409 surfaces as an
// *apiclient.Error with that status.
func (c *Client) InitialSetup(ctx context.Context, cookie string) (SetupStatus, error) {
	var status SetupStatus
	if err := c.api.GetJSON(ctx, PathInitialSetup, &status, passthrough(cookie)); err != nil {
		return SetupStatus{}, err
	}
	return status, nil
}

// BusinessType reads the configured business type. An invalid or missing
// value yields BusinessUnknown with a nil error.
func (c *Client) BusinessType(ctx context.Context, cookie string) (modules.BusinessType, error) {
	var cfg struct {
		BusinessType string `json:"businessType"`
	}
	if err := c.api.GetJSON(ctx, PathConfig, &cfg, passthrough(cookie)); err != nil {
		return modules.BusinessUnknown, err
	}
	bt, _ := modules.ParseBusinessType(cfg.BusinessType)
	return bt, nil
}

// Tokens is a token pair issued by the backend.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Login forwards credentials as-is and returns the issued tokens together
// with the backend's response body.
func (c *Client) Login(ctx context.Context, credentials any) (Tokens, any, error) {
	resp, err := c.api.Post(ctx, PathLogin, credentials, apiclient.Options{Silent: true, SkipRefresh: true})
	if err != nil {
		return Tokens{}, nil, err
	}
	access, refresh := apiclient.TokensFrom(resp)
	if access == "" || refresh == "" {
		return Tokens{}, resp.Data, errors.New(errors.KindBackend, "backend.login", "backend did not issue a token pair")
	}
	return Tokens{AccessToken: access, RefreshToken: refresh}, resp.Data, nil
}

// Refresh rotates the token pair stored under key.
func (c *Client) Refresh(ctx context.Context, key string) (session.Session, error) {
	return c.api.Refresh(ctx, key)
}

// Logout ends the stored session at the backend and locally.
func (c *Client) Logout(ctx context.Context, key string) error {
	return c.api.Logout(ctx, key)
}

// OpenShift returns the open shift of the session, or nil when none is open.
func (c *Client) OpenShift(ctx context.Context, sessionKey string) (*Shift, error) {
	resp, err := c.api.Get(ctx, PathOpenShift, apiclient.Options{SessionKey: sessionKey, Silent: true})
	if err != nil {
		if apiclient.IsKind(err, apiclient.KindHTTP) && Status(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if resp.Status == http.StatusNoContent || resp.Data == nil {
		return nil, nil
	}
	var shift Shift
	if err := resp.Decode(&shift); err != nil {
		return nil, errors.Wrap(errors.KindBackend, "backend.open_shift", "decode shift", err)
	}
	if shift.ID == "" {
		return nil, nil
	}
	return &shift, nil
}

func (c *Client) Tickets(ctx context.Context) ([]Ticket, error) {
	return list[Ticket](ctx, c.api, PathTickets)
}

func (c *Client) Orders(ctx context.Context) ([]Order, error) {
	return list[Order](ctx, c.api, PathOrders)
}

func (c *Client) Payments(ctx context.Context) ([]Payment, error) {
	return list[Payment](ctx, c.api, PathPayments)
}

func (c *Client) PaymentMethods(ctx context.Context) ([]PaymentMethod, error) {
	return list[PaymentMethod](ctx, c.api, PathPaymentMethods)
}

func (c *Client) Products(ctx context.Context) ([]Product, error) {
	return list[Product](ctx, c.api, PathProducts)
}

func (c *Client) Users(ctx context.Context) ([]User, error) {
	return list[User](ctx, c.api, PathUsers)
}

// list fetches a collection. An empty or null body is an empty list.
func list[T any](ctx context.Context, api *apiclient.Client, path string) ([]T, error) {
	resp, err := api.Get(ctx, path, apiclient.Options{})
	if err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return []T{}, nil
	}
	var items []T
	if err := resp.Decode(&items); err != nil {
		return nil, errors.Wrap(errors.KindBackend, "backend.list", "decode "+path, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}
