package orders

import "strings"

type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleOperator Role = "operator"
)

// Actor is the verified identity attached to a request. The core only
// authorizes against it.
type Actor struct {
	UserID string
	Role   Role
	ShopID string // set for vendors
}

func (a Actor) ownsShop(shopID string) bool {
	return a.Role == RoleVendor && a.ShopID != "" && a.ShopID == shopID
}

// Policy holds deployment-level authorization switches.
type Policy struct {
	OperatorCanTransition bool
}

func (p Policy) canTransition(a Actor, o Order) bool {
	if a.ownsShop(o.ShopID) {
		return true
	}
	return a.Role == RoleOperator && p.OperatorCanTransition
}

// CanView reports whether a may read o.
func CanView(a Actor, o Order) bool {
	switch a.Role {
	case RoleOperator:
		return true
	case RoleVendor:
		return a.ownsShop(o.ShopID)
	case RoleCustomer:
		return a.UserID != "" && a.UserID == o.CustomerID
	}
	return false
}

const (
	channelCustomer = "customer:"
	channelShop     = "shop:"
)

func CustomerChannel(customerID string) string { return channelCustomer + customerID }
func ShopChannel(shopID string) string         { return channelShop + shopID }

// CanSubscribe reports whether a may join channel.
func CanSubscribe(a Actor, channel string) bool {
	switch {
	case a.Role == RoleOperator:
		return strings.HasPrefix(channel, channelCustomer) || strings.HasPrefix(channel, channelShop)
	case strings.HasPrefix(channel, channelCustomer):
		return a.Role == RoleCustomer && a.UserID != "" && channel == CustomerChannel(a.UserID)
	case strings.HasPrefix(channel, channelShop):
		return a.Role == RoleVendor && a.ShopID != "" && channel == ShopChannel(a.ShopID)
	}
	return false
}
