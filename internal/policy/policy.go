// Package policy decides what an actor may do with tenant-scoped resources.
package policy

import (
	"errors"

	"salon-service/internal/models"
)

// ErrForbidden is returned when an actor is denied an action
var ErrForbidden = errors.New("forbidden")

type Resource string

const (
	ResourceOrders      Resource = "orders"
	ResourceReviews     Resource = "reviews"
	ResourceCommissions Resource = "commissions"
	ResourceOnboarding  Resource = "onboarding"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

type Effect int

const (
	Deny Effect = iota
	Allow
	Filtered
)

// Filter restricts a permitted action to records matching every non-zero field
type Filter struct {
	TenantID int64
	OwnerID  int64
}

// Decision is the outcome of a policy check
type Decision struct {
	Effect Effect
	Filter Filter
}

var (
	allow = Decision{Effect: Allow}
	deny  = Decision{Effect: Deny}
)

func tenantOnly(a models.Actor) Decision {
	return Decision{Effect: Filtered, Filter: Filter{TenantID: a.TenantID}}
}

func tenantOwner(a models.Actor) Decision {
	return Decision{Effect: Filtered, Filter: Filter{TenantID: a.TenantID, OwnerID: a.UserID}}
}

type rule func(models.Actor) Decision

var rules = map[Resource]map[Action]map[models.Role]rule{
	ResourceOrders: {
		ActionRead: {
			models.RoleManager:  tenantOnly,
			models.RoleBarber:   tenantOnly,
			models.RoleCustomer: tenantOwner,
		},
		ActionCreate: {
			models.RoleManager:  tenantOnly,
			models.RoleBarber:   tenantOnly,
			models.RoleCustomer: tenantOwner,
		},
		ActionUpdate: {
			models.RoleManager: tenantOnly,
		},
	},
	ResourceReviews: {
		ActionRead: {
			models.RoleManager:  tenantOnly,
			models.RoleBarber:   tenantOnly,
			models.RoleCustomer: tenantOnly,
		},
		ActionCreate: {
			models.RoleManager:  tenantOnly,
			models.RoleCustomer: tenantOwner,
		},
		ActionUpdate: {
			models.RoleManager:  tenantOnly,
			models.RoleCustomer: tenantOwner,
		},
		ActionDelete: {
			models.RoleManager:  tenantOnly,
			models.RoleCustomer: tenantOwner,
		},
	},
	ResourceCommissions: {
		ActionRead: {
			models.RoleManager: tenantOnly,
			models.RoleBarber:  tenantOwner,
		},
		ActionCreate: {
			models.RoleManager: tenantOnly,
		},
		ActionUpdate: {
			models.RoleManager: tenantOnly,
		},
	},
	ResourceOnboarding: {
		ActionRead:   {models.RoleManager: tenantOnly},
		ActionCreate: {models.RoleManager: tenantOnly},
		ActionUpdate: {models.RoleManager: tenantOnly},
	},
}

// Check returns the decision for actor performing action on resource.
// Admins are allowed everything; unknown roles and unlisted combinations are denied.
func Check(actor models.Actor, resource Resource, action Action) Decision {
	if actor.Role == models.RoleAdmin {
		return allow
	}
	if actor.UserID == 0 || actor.TenantID == 0 {
		return deny
	}

	r, ok := rules[resource][action][actor.Role]
	if !ok {
		return deny
	}
	return r(actor)
}

// Permits reports whether a record owned by ownerID in tenantID passes the decision
func (d Decision) Permits(tenantID, ownerID int64) bool {
	switch d.Effect {
	case Allow:
		return true
	case Filtered:
		if d.Filter.TenantID != 0 && d.Filter.TenantID != tenantID {
			return false
		}
		if d.Filter.OwnerID != 0 && d.Filter.OwnerID != ownerID {
			return false
		}
		return true
	default:
		return false
	}
}

// Authorize is Check followed by Permits, returning ErrForbidden on refusal
func Authorize(actor models.Actor, resource Resource, action Action, tenantID, ownerID int64) error {
	if !Check(actor, resource, action).Permits(tenantID, ownerID) {
		return ErrForbidden
	}
	return nil
}
