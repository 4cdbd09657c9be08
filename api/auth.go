package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"taskdesk/domain"
)

// Confirmation is the body returned by delete endpoints.
type Confirmation struct {
	Message string `json:"message"`
}

// Register creates an account and stores the returned token.
func (c *Client) Register(ctx context.Context, in domain.RegisterRequest) (domain.AuthResponse, error) {
	if err := c.check(in); err != nil {
		return domain.AuthResponse{}, err
	}
	return c.authenticate(ctx, request{method: http.MethodPost, route: "/auth/register", path: "/auth/register", body: in})
}

// Login exchanges credentials for a token and stores it.
func (c *Client) Login(ctx context.Context, in domain.Credentials) (domain.AuthResponse, error) {
	if err := c.check(in); err != nil {
		return domain.AuthResponse{}, err
	}
	return c.authenticate(ctx, request{method: http.MethodPost, route: "/auth/login", path: "/auth/login", body: in})
}

func (c *Client) authenticate(ctx context.Context, r request) (domain.AuthResponse, error) {
	data, err := c.do(ctx, r)
	if err != nil {
		return domain.AuthResponse{}, err
	}
	out, err := decodeOne[domain.AuthResponse](data, "auth")
	if err != nil {
		return domain.AuthResponse{}, err
	}
	if out.Token == "" {
		return domain.AuthResponse{}, ErrNoToken
	}
	if c.tokens != nil {
		if err := c.tokens.Save(ctx, out.Token); err != nil {
			return domain.AuthResponse{}, fmt.Errorf("%s: %w", r.route, err)
		}
	}
	return out, nil
}

// Profile returns the authenticated user.
func (c *Client) Profile(ctx context.Context) (domain.User, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, route: "/auth/profile", path: "/auth/profile", auth: true})
	if err != nil {
		return domain.User{}, err
	}
	return decodeOne[domain.User](data, "user")
}

func (c *Client) UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) (domain.User, error) {
	if err := requireID("user", id); err != nil {
		return domain.User{}, err
	}
	if err := c.check(patch); err != nil {
		return domain.User{}, err
	}
	data, err := c.do(ctx, request{
		method: http.MethodPut,
		route:  "/auth/profile/:id",
		path:   "/auth/profile/" + url.PathEscape(id),
		body:   patch,
		auth:   true,
	})
	if err != nil {
		return domain.User{}, err
	}
	return decodeOne[domain.User](data, "user")
}

func (c *Client) DeleteProfile(ctx context.Context, id string) (Confirmation, error) {
	if err := requireID("user", id); err != nil {
		return Confirmation{}, err
	}
	data, err := c.do(ctx, request{
		method: http.MethodDelete,
		route:  "/auth/profile/:id",
		path:   "/auth/profile/" + url.PathEscape(id),
		auth:   true,
	})
	if err != nil {
		return Confirmation{}, err
	}
	return decodeConfirmation(data)
}

// Employees lists the users a manager can assign tasks to.
func (c *Client) Employees(ctx context.Context) ([]domain.Employee, error) {
	data, err := c.do(ctx, request{method: http.MethodGet, route: "/auth/employees", path: "/auth/employees", auth: true})
	if err != nil {
		return nil, err
	}
	return decodeList[domain.Employee](data, "employees")
}

func decodeConfirmation(data []byte) (Confirmation, error) {
	if len(data) == 0 {
		return Confirmation{}, nil
	}
	return decodeOne[Confirmation](data, "confirmation")
}
