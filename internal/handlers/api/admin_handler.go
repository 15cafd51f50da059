package api

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/audit"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/customers"
	authmw "github.com/psyphiuk/marcello-whatsapp-pa-web/internal/middlewares/auth"
)

// AdminHandler exposes privileged account and session management. Every
// allowed action lands in the admin audit log with the acting admin's id.
type AdminHandler struct {
	customerService CustomerService
	sessionService  SessionService
}

func NewAdminHandler(customerService CustomerService, sessionService SessionService) *AdminHandler {
	return &AdminHandler{
		customerService: customerService,
		sessionService:  sessionService,
	}
}

type sessionInfoResponse struct {
	SessionID    uint      `json:"sessionId"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"userAgent"`
	MFAVerified  bool      `json:"mfaVerified"`
	LastActivity time.Time `json:"lastActivity"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func customerIDParam(ctx *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(ctx.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.ErrBadRequest
	}
	return uint(id), nil
}

// GetCustomerSessions lists a customer's live sessions. Tokens are never
// exposed, only row metadata.
func (h *AdminHandler) GetCustomerSessions(ctx *fiber.Ctx) error {
	customerID, err := customerIDParam(ctx)
	if err != nil {
		return err
	}
	sessionRows, err := h.sessionService.ListForCustomer(ctx.Context(), customerID)
	if err != nil {
		slog.Error("Failed to list sessions", "customer", customerID, "error", err)
		return fiber.ErrInternalServerError
	}

	infos := make([]sessionInfoResponse, 0, len(sessionRows))
	for _, row := range sessionRows {
		infos = append(infos, sessionInfoResponse{
			SessionID:    row.ID,
			IP:           row.IP,
			UserAgent:    row.UserAgent,
			MFAVerified:  row.MFAVerified,
			LastActivity: row.LastActivity,
			ExpiresAt:    row.ExpiresAt,
		})
	}

	if admin := authmw.Get(ctx); admin != nil {
		audit.RecordAdminAction(ctx.Context(), admin.Customer.ID, audit.ActionDataRead, "sessions", map[string]any{
			"customer_id": customerID,
			"count":       len(infos),
		})
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"sessions": infos}))
}

// DeleteCustomerSessions revokes every live session of a customer.
func (h *AdminHandler) DeleteCustomerSessions(ctx *fiber.Ctx) error {
	customerID, err := customerIDParam(ctx)
	if err != nil {
		return err
	}
	revoked, err := h.sessionService.DestroyAll(ctx.Context(), customerID)
	if err != nil {
		slog.Error("Failed to revoke sessions", "customer", customerID, "error", err)
		return fiber.ErrInternalServerError
	}

	if admin := authmw.Get(ctx); admin != nil {
		audit.RecordAdminAction(ctx.Context(), admin.Customer.ID, audit.ActionSessionRevoked, "sessions", map[string]any{
			"customer_id": customerID,
			"revoked":     revoked,
		})
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"revoked": revoked}))
}

type createCustomerRequest struct {
	Email       string `json:"email"`
	CompanyName string `json:"companyName"`
	Password    string `json:"password"`
	IsAdmin     bool   `json:"isAdmin"`
}

// PostCustomer provisions an account. The password must satisfy the policy.
func (h *AdminHandler) PostCustomer(ctx *fiber.Ctx) error {
	var req createCustomerRequest
	if err := ctx.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "Missing required parameters"),
		)
	}

	customer, err := h.customerService.CreateCustomer(ctx.Context(), customers.CreateCustomerOptions{
		Email:       req.Email,
		CompanyName: req.CompanyName,
		Password:    req.Password,
		IsAdmin:     req.IsAdmin,
	})
	if err != nil {
		switch {
		case errors.Is(err, customers.ErrEmailTaken):
			return ctx.Status(fiber.StatusConflict).JSON(
				NewErrorResponse(fiber.StatusConflict, "Email already registered"),
			)
		case errors.Is(err, customers.ErrWeakPassword):
			return ctx.Status(fiber.StatusBadRequest).JSON(
				NewErrorResponse(fiber.StatusBadRequest, err.Error()),
			)
		}
		slog.Error("Failed to create customer", "error", err)
		return fiber.ErrInternalServerError
	}

	if admin := authmw.Get(ctx); admin != nil {
		audit.RecordAdminAction(ctx.Context(), admin.Customer.ID, audit.ActionDataWrite, "customers", map[string]any{
			"customer_id": customer.ID,
			"email":       customer.Email,
		})
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(newCustomerInfo(customer)))
}

type setDisabledRequest struct {
	Disabled bool `json:"disabled"`
}

// PatchCustomerDisabled enables or disables an account. Disabling also
// revokes all live sessions so the lockout takes effect immediately.
func (h *AdminHandler) PatchCustomerDisabled(ctx *fiber.Ctx) error {
	customerID, err := customerIDParam(ctx)
	if err != nil {
		return err
	}
	var req setDisabledRequest
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "Missing required parameters"),
		)
	}

	if _, err := h.customerService.GetByID(ctx.Context(), customerID); err != nil {
		if errors.Is(err, customers.ErrCustomerNotFound) {
			return fiber.ErrNotFound
		}
		slog.Error("Failed to load customer", "customer", customerID, "error", err)
		return fiber.ErrInternalServerError
	}
	if err := h.customerService.SetDisabled(ctx.Context(), customerID, req.Disabled); err != nil {
		slog.Error("Failed to update customer", "customer", customerID, "error", err)
		return fiber.ErrInternalServerError
	}

	var revoked int64
	if req.Disabled {
		if revoked, err = h.sessionService.DestroyAll(ctx.Context(), customerID); err != nil {
			slog.Error("Failed to revoke sessions", "customer", customerID, "error", err)
			return fiber.ErrInternalServerError
		}
	}

	if admin := authmw.Get(ctx); admin != nil {
		audit.RecordAdminAction(ctx.Context(), admin.Customer.ID, audit.ActionDataWrite, "customers", map[string]any{
			"customer_id": customerID,
			"disabled":    req.Disabled,
			"revoked":     revoked,
		})
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"success": true, "revoked": revoked}))
}
