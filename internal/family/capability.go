package family

import "github.com/dukerupert/fampulse/internal/model"

// CanManage reports whether actor may change or remove a member holding
// target. Admins manage everyone, admin-lites manage kids, kids nobody.
func CanManage(actor, target model.Role) bool {
	switch actor {
	case model.RoleAdmin:
		return true
	case model.RoleAdminLite:
		return target == model.RoleKid
	}
	return false
}

// CanAssignRoles reports whether actor may change other members' roles.
func CanAssignRoles(actor model.Role) bool { return actor == model.RoleAdmin }

// CanEditDeliveries reports whether actor may clear a cancelled delivery
// day back to no delivery.
func CanEditDeliveries(actor model.Role) bool {
	return actor == model.RoleAdmin || actor == model.RoleAdminLite
}

// CanDeleteHistory reports whether actor may delete purchase history.
func CanDeleteHistory(actor model.Role) bool { return actor == model.RoleAdmin }

func CanRenameFamily(actor model.Role) bool { return actor == model.RoleAdmin }

// CanEditTree reports whether actor may set parents and spouses.
func CanEditTree(actor model.Role) bool {
	return actor == model.RoleAdmin || actor == model.RoleAdminLite
}
