package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/devilmonastery/tessera/internal/pkg/urlutil"
)

// Admin covers tenant, role and group management.
type Admin struct {
	c *Client
}

func (a *Admin) ListTenants(ctx context.Context, opts ListOptions) (*TenantList, error) {
	query := url.Values{}
	if opts.Offset > 0 {
		query.Set("offset", strconv.Itoa(opts.Offset))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	var list TenantList
	err := a.c.do(ctx, request{method: http.MethodGet, route: "/admin/tenants", query: query}, &list)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	if list.Total == 0 {
		list.Total = len(list.Tenants)
	}
	return &list, nil
}

func (a *Admin) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	var tenant Tenant
	err := a.c.do(ctx, request{method: http.MethodGet, route: tenantRoute(id)}, &tenant)
	if err != nil {
		return nil, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return &tenant, nil
}

func (a *Admin) CreateTenant(ctx context.Context, req CreateTenantRequest) (*Tenant, error) {
	var tenant Tenant
	err := a.c.do(ctx, request{method: http.MethodPost, route: "/admin/tenants", body: req}, &tenant)
	if err != nil {
		return nil, fmt.Errorf("create tenant: %w", err)
	}
	return &tenant, nil
}

func (a *Admin) UpdateTenant(ctx context.Context, id string, req UpdateTenantRequest) (*Tenant, error) {
	var tenant Tenant
	err := a.c.do(ctx, request{method: http.MethodPatch, route: tenantRoute(id), body: req}, &tenant)
	if err != nil {
		return nil, fmt.Errorf("update tenant %s: %w", id, err)
	}
	return &tenant, nil
}

func (a *Admin) DeleteTenant(ctx context.Context, id string) error {
	if err := a.c.do(ctx, request{method: http.MethodDelete, route: tenantRoute(id)}, nil); err != nil {
		return fmt.Errorf("delete tenant %s: %w", id, err)
	}
	return nil
}

// ListRoles lists roles, optionally scoped to a tenant.
func (a *Admin) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	var resp struct {
		Roles []Role `json:"roles"`
	}
	err := a.c.do(ctx, request{method: http.MethodGet, route: "/admin/roles", query: tenantQuery(tenantID)}, &resp)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return resp.Roles, nil
}

// ListGroups lists groups, optionally scoped to a tenant.
func (a *Admin) ListGroups(ctx context.Context, tenantID string) ([]Group, error) {
	var resp struct {
		Groups []Group `json:"groups"`
	}
	err := a.c.do(ctx, request{method: http.MethodGet, route: "/admin/groups", query: tenantQuery(tenantID)}, &resp)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return resp.Groups, nil
}

func tenantRoute(id string) string {
	return "/admin/tenants/" + urlutil.EscapeSegment(id)
}

func tenantQuery(tenantID string) url.Values {
	if tenantID == "" {
		return nil
	}
	return url.Values{"tenantId": {tenantID}}
}
