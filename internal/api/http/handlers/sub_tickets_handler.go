package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-hub/ticket-service/internal/api/dto"
	"github.com/helpdesk-hub/ticket-service/internal/domain"
	"github.com/helpdesk-hub/ticket-service/internal/service"
)

// SubTicketsHandler exposes sub-ticket endpoints.
type SubTicketsHandler struct {
	service *service.SubTicketService
}

// NewSubTicketsHandler constructs handler.
func NewSubTicketsHandler(subTicketService *service.SubTicketService) *SubTicketsHandler {
	return &SubTicketsHandler{service: subTicketService}
}

// Create POST /tickets/:id/sub-tickets.
func (h *SubTicketsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateSubTicketRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sub, err := h.service.Create(c.UserContext(), c.Params("id"), service.CreateSubTicketInput{
		Title:        req.Title,
		Description:  req.Description,
		Priority:     req.Priority,
		DepartmentID: req.DepartmentID,
		AssigneeID:   req.AssigneeID,
	}, actorFrom(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewSubTicketResponse(sub)})
}

// ListByParent GET /tickets/:id/sub-tickets.
func (h *SubTicketsHandler) ListByParent(c *fiber.Ctx) error {
	subs, err := h.service.ListByParent(c.UserContext(), c.Params("id"), queryBool(c, "include_deleted"))
	if err != nil {
		return err
	}
	items := make([]dto.SubTicketResponse, 0, len(subs))
	for i := range subs {
		items = append(items, dto.NewSubTicketResponse(&subs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /sub-tickets/:id.
func (h *SubTicketsHandler) Get(c *fiber.Ctx) error {
	sub, err := h.service.Get(c.UserContext(), c.Params("id"), queryBool(c, "include_deleted"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSubTicketResponse(sub)})
}

// ApplyAction POST /sub-tickets/:id/actions.
func (h *SubTicketsHandler) ApplyAction(c *fiber.Ctx) error {
	var req dto.SubTicketActionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sub, err := h.service.ApplyAction(c.UserContext(), c.Params("id"), domain.SubTicketAction(req.Action), actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSubTicketResponse(sub)})
}

// Assign POST /sub-tickets/:id/assign.
func (h *SubTicketsHandler) Assign(c *fiber.Ctx) error {
	var req dto.AssignRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sub, err := h.service.Assign(c.UserContext(), c.Params("id"), req.AssigneeID, req.DepartmentID, actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSubTicketResponse(sub)})
}

// UpdateProgress PATCH /sub-tickets/:id/progress.
func (h *SubTicketsHandler) UpdateProgress(c *fiber.Ctx) error {
	var req dto.ProgressRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	sub, err := h.service.UpdateProgress(c.UserContext(), c.Params("id"), *req.ProgressPercent, actorFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSubTicketResponse(sub)})
}

// History GET /sub-tickets/:id/history.
func (h *SubTicketsHandler) History(c *fiber.Ctx) error {
	logs, err := h.service.History(c.UserContext(), c.Params("id"), historyPageFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAuditLogResponses(logs)})
}
