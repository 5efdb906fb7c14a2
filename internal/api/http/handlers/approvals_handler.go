package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-hub/ticket-service/internal/api/dto"
	"github.com/helpdesk-hub/ticket-service/internal/domain"
	"github.com/helpdesk-hub/ticket-service/internal/service"
)

// ApprovalsHandler exposes approval endpoints.
type ApprovalsHandler struct {
	service *service.ApprovalService
}

// NewApprovalsHandler constructs handler.
func NewApprovalsHandler(approvalService *service.ApprovalService) *ApprovalsHandler {
	return &ApprovalsHandler{service: approvalService}
}

// Create POST /approvals.
func (h *ApprovalsHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateApprovalRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	approval, err := h.service.Create(c.UserContext(), service.CreateApprovalInput{
		TicketID:   req.TicketID,
		ApproverID: req.ApproverID,
		Reason:     req.Reason,
		Documents:  req.Documents,
	}, actorFrom(c))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewApprovalResponse(approval)})
}

// ListByTicket GET /tickets/:id/approvals.
func (h *ApprovalsHandler) ListByTicket(c *fiber.Ctx) error {
	approvals, err := h.service.ListByTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.ApprovalResponse, 0, len(approvals))
	for i := range approvals {
		items = append(items, dto.NewApprovalResponse(&approvals[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /approvals/:id.
func (h *ApprovalsHandler) Get(c *fiber.Ctx) error {
	approval, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewApprovalResponse(approval)})
}

// Approve POST /approvals/:id/approve.
func (h *ApprovalsHandler) Approve(c *fiber.Ctx) error {
	return h.decide(c, domain.ApprovalActionApprove)
}

// Reject POST /approvals/:id/reject.
func (h *ApprovalsHandler) Reject(c *fiber.Ctx) error {
	return h.decide(c, domain.ApprovalActionReject)
}

func (h *ApprovalsHandler) decide(c *fiber.Ctx, action domain.ApprovalAction) error {
	var req dto.DecisionRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	var (
		approval *domain.Approval
		err      error
	)
	if action == domain.ApprovalActionApprove {
		approval, err = h.service.Approve(c.UserContext(), c.Params("id"), req.Reason, actorFrom(c))
	} else {
		approval, err = h.service.Reject(c.UserContext(), c.Params("id"), req.Reason, actorFrom(c))
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewApprovalResponse(approval)})
}
