package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-hub/ticket-service/internal/api/dto"
	"github.com/helpdesk-hub/ticket-service/internal/auth"
	"github.com/helpdesk-hub/ticket-service/internal/service"
	apperrors "github.com/helpdesk-hub/ticket-service/pkg/util/errorutil"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// actorFrom builds the audit actor from the authenticated principal and the
// client address. Anonymous callers yield an actor without an ID.
func actorFrom(c *fiber.Ctx) service.Actor {
	var subjectID string
	if principal, ok := auth.PrincipalFromContext(c); ok {
		subjectID = principal.SubjectID
	}
	return service.NewActor(subjectID, c.IP())
}

func bind(c *fiber.Ctx, req any) error {
	if len(c.Body()) == 0 {
		return dto.Validate(req)
	}
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.Validate(req)
}

func pageFrom(c *fiber.Ctx) service.Page {
	limit := c.QueryInt("limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	return service.Page{Limit: limit, Offset: offset}
}

// historyPageFrom returns the whole trail unless the caller asks for a window.
func historyPageFrom(c *fiber.Ctx) service.Page {
	if c.Query("limit") == "" && c.Query("offset") == "" {
		return service.Page{}
	}
	return pageFrom(c)
}

func queryBool(c *fiber.Ctx, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}

func queryString(c *fiber.Ctx, key string) *string {
	if v := strings.TrimSpace(c.Query(key)); v != "" {
		return &v
	}
	return nil
}

func queryList(c *fiber.Ctx, key string) []string {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func queryTime(c *fiber.Ctx, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid timestamp", map[string]any{key: "must be RFC3339"})
	}
	return &ts, nil
}
