package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/mfa"
	authmw "github.com/psyphiuk/marcello-whatsapp-pa-web/internal/middlewares/auth"
)

type MFAHandler struct {
	mfaService     MFAService
	sessionService SessionService
}

func NewMFAHandler(mfaService MFAService, sessionService SessionService) *MFAHandler {
	return &MFAHandler{
		mfaService:     mfaService,
		sessionService: sessionService,
	}
}

type completeEnrollmentRequest struct {
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

type verifyRequest struct {
	Code         string `json:"code"`
	IsBackupCode bool   `json:"isBackupCode"`
}

type codeRequest struct {
	Code string `json:"code"`
}

func mfaClientMeta(ctx *fiber.Ctx) mfa.ClientMeta {
	return mfa.ClientMeta{IP: ctx.IP(), UserAgent: ctx.Get(fiber.HeaderUserAgent)}
}

// GetSetup starts enrollment: a fresh secret and provisioning URL the client
// renders as a QR code. Nothing is persisted until the code round-trips.
func (h *MFAHandler) GetSetup(ctx *fiber.Ctx) error {
	identity := authmw.Get(ctx)
	if identity == nil {
		return fiber.ErrUnauthorized
	}
	enrollment, err := h.mfaService.BeginEnrollment(ctx.Context(), identity.Customer.ID)
	if err != nil {
		if errors.Is(err, mfa.ErrAlreadyEnrolled) {
			return ctx.Status(fiber.StatusConflict).JSON(
				NewErrorResponse(fiber.StatusConflict, "MFA is already enabled"),
			)
		}
		slog.Error("Failed to begin MFA enrollment", "customer", identity.Customer.ID, "error", err)
		return fiber.ErrInternalServerError
	}
	return ctx.JSON(NewDataResponse(fiber.Map{
		"secret":     enrollment.Secret,
		"otpauthUrl": enrollment.OTPAuthURL,
	}))
}

// PostSetup completes enrollment: verifies the code against the pending
// secret, persists it, and returns the backup codes exactly once.
func (h *MFAHandler) PostSetup(ctx *fiber.Ctx) error {
	identity := authmw.Get(ctx)
	if identity == nil {
		return fiber.ErrUnauthorized
	}
	var req completeEnrollmentRequest
	if err := ctx.BodyParser(&req); err != nil || req.Secret == "" || req.Code == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "Missing required parameters"),
		)
	}

	backupCodes, err := h.mfaService.CompleteEnrollment(ctx.Context(), identity.Customer.ID, req.Secret, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, mfa.ErrInvalidCode):
			return ctx.Status(fiber.StatusBadRequest).JSON(
				NewErrorResponse(fiber.StatusBadRequest, "Verification failed"),
			)
		case errors.Is(err, mfa.ErrAlreadyEnrolled):
			return ctx.Status(fiber.StatusConflict).JSON(
				NewErrorResponse(fiber.StatusConflict, "MFA is already enabled"),
			)
		}
		slog.Error("Failed to complete MFA enrollment", "customer", identity.Customer.ID, "error", err)
		return fiber.ErrInternalServerError
	}

	return ctx.JSON(NewDataResponse(fiber.Map{
		"success":     true,
		"backupCodes": backupCodes,
	}))
}

// PostVerify checks a TOTP or backup code during login and marks the session
// MFA-verified on success.
func (h *MFAHandler) PostVerify(ctx *fiber.Ctx) error {
	identity := authmw.Get(ctx)
	if identity == nil {
		return fiber.ErrUnauthorized
	}
	var req verifyRequest
	if err := ctx.BodyParser(&req); err != nil || req.Code == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "Missing required parameters"),
		)
	}

	err := h.mfaService.VerifyLogin(ctx.Context(), identity.Customer.ID, req.Code, req.IsBackupCode, mfaClientMeta(ctx))
	if err != nil {
		if errors.Is(err, mfa.ErrInvalidCode) || errors.Is(err, mfa.ErrNotEnrolled) {
			return fiber.ErrUnauthorized
		}
		slog.Error("MFA verification failed", "customer", identity.Customer.ID, "error", err)
		return fiber.ErrInternalServerError
	}

	if identity.Session != "" {
		if err := h.sessionService.SetMFAVerified(ctx.Context(), identity.Session, true); err != nil {
			slog.Error("Failed to flag session MFA-verified", "customer", identity.Customer.ID, "error", err)
			return fiber.ErrInternalServerError
		}
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"success": true}))
}

// PostDisable turns MFA off. A live TOTP code is required; backup codes are
// deliberately not accepted here.
func (h *MFAHandler) PostDisable(ctx *fiber.Ctx) error {
	identity := authmw.Get(ctx)
	if identity == nil {
		return fiber.ErrUnauthorized
	}
	var req codeRequest
	if err := ctx.BodyParser(&req); err != nil || req.Code == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "Missing required parameters"),
		)
	}

	if err := h.mfaService.Disable(ctx.Context(), identity.Customer.ID, req.Code); err != nil {
		if errors.Is(err, mfa.ErrTOTPRequired) || errors.Is(err, mfa.ErrNotEnrolled) {
			return fiber.ErrUnauthorized
		}
		slog.Error("Failed to disable MFA", "customer", identity.Customer.ID, "error", err)
		return fiber.ErrInternalServerError
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"success": true}))
}

// PostBackupCodes replaces the backup-code set. Requires a live TOTP code.
func (h *MFAHandler) PostBackupCodes(ctx *fiber.Ctx) error {
	identity := authmw.Get(ctx)
	if identity == nil {
		return fiber.ErrUnauthorized
	}
	var req codeRequest
	if err := ctx.BodyParser(&req); err != nil || req.Code == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "Missing required parameters"),
		)
	}

	backupCodes, err := h.mfaService.RegenerateBackupCodes(ctx.Context(), identity.Customer.ID, req.Code)
	if err != nil {
		if errors.Is(err, mfa.ErrTOTPRequired) || errors.Is(err, mfa.ErrNotEnrolled) {
			return fiber.ErrUnauthorized
		}
		slog.Error("Failed to regenerate backup codes", "customer", identity.Customer.ID, "error", err)
		return fiber.ErrInternalServerError
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"backupCodes": backupCodes}))
}

// GetStatus reports enrollment state and how many backup codes remain.
func (h *MFAHandler) GetStatus(ctx *fiber.Ctx) error {
	identity := authmw.Get(ctx)
	if identity == nil {
		return fiber.ErrUnauthorized
	}
	status, err := h.mfaService.Status(ctx.Context(), identity.Customer.ID)
	if err != nil {
		slog.Error("Failed to query MFA status", "customer", identity.Customer.ID, "error", err)
		return fiber.ErrInternalServerError
	}
	return ctx.JSON(NewDataResponse(fiber.Map{
		"enabled":              status.Enabled,
		"backupCodesRemaining": status.BackupCodesRemaining,
		"lastChallenge":        status.LastChallenge,
	}))
}
