package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/helpdesk-hub/ticket-service/pkg/util/errorutil"
)

// Role is the caller's role as asserted by the identity provider.
type Role string

const (
	RoleRequestor Role = "requestor"
	RoleAssignee  Role = "assignee"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole normalises a role claim. Unknown values are rejected.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case RoleRequestor, RoleAssignee, RoleModerator, RoleAdmin:
		return r, true
	}
	return "", false
}

// RequireRole ensures the principal holds one of the allowed roles.
func RequireRole(allowed ...Role) fiber.Handler {
	allowedSet := make(map[Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[principal.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
