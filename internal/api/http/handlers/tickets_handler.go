package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-hub/ticket-service/internal/api/dto"
	"github.com/helpdesk-hub/ticket-service/internal/auth"
	"github.com/helpdesk-hub/ticket-service/internal/domain"
	"github.com/helpdesk-hub/ticket-service/internal/repository"
	"github.com/helpdesk-hub/ticket-service/internal/service"
	apperrors "github.com/helpdesk-hub/ticket-service/pkg/util/errorutil"
)

// TicketsHandler exposes ticket lifecycle endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	requestorID := req.RequestorID
	if requestorID == "" {
		if principal, ok := auth.PrincipalFromContext(c); ok {
			requestorID = principal.SubjectID
		}
	}
	ticket, err := h.service.CreateTicket(c.UserContext(), service.CreateTicketInput{
		Title:            req.Title,
		Description:      req.Description,
		RequestorID:      requestorID,
		DepartmentID:     req.DepartmentID,
		Priority:         req.Priority,
		Category:         req.Category,
		Status:           req.Status,
		RequiresApproval: req.RequiresApproval,
	}, actorFrom(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.Get(c.UserContext(), c.Params("id"), queryBool(c, "include_deleted"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ApplyAction POST /tickets/:id/actions.
func (h *TicketsHandler) ApplyAction(c *fiber.Ctx) error {
	var req dto.ActionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.ApplyAction(c.UserContext(), c.Params("id"), service.ActionRequest{
		Action:       domain.TicketAction(req.Action),
		Reason:       req.Reason,
		AssigneeID:   req.AssigneeID,
		DepartmentID: req.DepartmentID,
	}, actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Assign POST /tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.Assign(c.UserContext(), c.Params("id"), req.AssigneeID, req.DepartmentID, actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ConfirmReview POST /tickets/:id/confirm-review.
func (h *TicketsHandler) ConfirmReview(c *fiber.Ctx) error {
	var req dto.ConfirmReviewRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.ConfirmReview(c.UserContext(), c.Params("id"), service.ConfirmReviewInput{
		Title:        req.Title,
		Description:  req.Description,
		Priority:     req.Priority,
		Category:     req.Category,
		DepartmentID: req.DepartmentID,
		AssigneeID:   req.AssigneeID,
	}, actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdateProgress PATCH /tickets/:id/progress.
func (h *TicketsHandler) UpdateProgress(c *fiber.Ctx) error {
	var req dto.ProgressRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.UpdateProgress(c.UserContext(), c.Params("id"), *req.ProgressPercent, actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Acknowledge POST /tickets/:id/acknowledge.
func (h *TicketsHandler) Acknowledge(c *fiber.Ctx) error {
	var req dto.AcknowledgeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := h.service.Acknowledge(c.UserContext(), c.Params("id"), req.Notes, actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"ticket":              dto.NewTicketResponse(result.Ticket),
		"within_response_sla": result.WithinResponseSLA,
	}})
}

// UpdateSLA PATCH /tickets/:id/sla.
func (h *TicketsHandler) UpdateSLA(c *fiber.Ctx) error {
	var req dto.UpdateSLARequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.UpdateSLA(c.UserContext(), c.Params("id"), *req.DueAt, req.Reason, actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	logs, err := h.service.History(c.UserContext(), c.Params("id"), historyPageFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAuditLogResponses(logs)})
}

// DeleteTicket DELETE /tickets/:id?reason=.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.service.SoftDelete(c.UserContext(), c.Params("id"), c.Query("reason"), actorFrom(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// RestoreTicket POST /tickets/:id/restore.
func (h *TicketsHandler) RestoreTicket(c *fiber.Ctx) error {
	var req dto.DecisionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.service.Restore(c.UserContext(), c.Params("id"), req.Reason, actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

func parseTicketQuery(c *fiber.Ctx) (repository.TicketFilter, error) {
	page := pageFrom(c)
	filter := repository.TicketFilter{
		RequestorID:    queryString(c, "requestor_id"),
		DepartmentID:   queryString(c, "department_id"),
		AssigneeID:     queryString(c, "assignee_id"),
		SearchTerm:     queryString(c, "q"),
		IncludeDeleted: queryBool(c, "include_deleted"),
		Limit:          page.Limit,
		Offset:         page.Offset,
	}
	for _, raw := range queryList(c, "status") {
		status := domain.TicketStatus(raw)
		if !status.Valid() {
			return filter, apperrors.NewValidationError("invalid status filter", map[string]any{"status": raw})
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, raw := range queryList(c, "priority") {
		priority, err := domain.ParsePriority(raw)
		if err != nil {
			return filter, apperrors.NewValidationError("invalid priority filter", map[string]any{"priority": raw})
		}
		filter.Priorities = append(filter.Priorities, priority)
	}
	var err error
	if filter.CreatedFrom, err = queryTime(c, "created_from"); err != nil {
		return filter, err
	}
	if filter.CreatedTo, err = queryTime(c, "created_to"); err != nil {
		return filter, err
	}
	return filter, nil
}
