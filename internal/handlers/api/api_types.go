package api

import (
	"context"

	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/customers"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/mfa"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/sessions"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/model"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
)

type APIResponse struct {
	APIVersion string        `json:"apiVersion"`
	Data       any           `json:"data,omitempty"`
	Error      *APIErrorInfo `json:"error,omitempty"`
}

type APIErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewDataResponse(data any) APIResponse {
	return APIResponse{APIVersion: params.APIVersion, Data: data}
}

func NewErrorResponse(code int, message string) APIResponse {
	return APIResponse{
		APIVersion: params.APIVersion,
		Error:      &APIErrorInfo{Code: code, Message: message},
	}
}

type CustomerService interface {
	GetByID(ctx context.Context, id uint) (*model.Customer, error)
	Authenticate(ctx context.Context, email string, password string) (*model.Customer, error)
	CreateCustomer(ctx context.Context, opts customers.CreateCustomerOptions) (*model.Customer, error)
	UpdatePassword(ctx context.Context, customerID uint, newPassword string) error
	SetDisabled(ctx context.Context, customerID uint, disabled bool) error
}

type SessionService interface {
	Create(ctx context.Context, customerID uint, meta sessions.ClientMeta, mfaVerified bool) (*sessions.CreatedSession, error)
	Validate(ctx context.Context, token string) (*sessions.Validation, error)
	Refresh(ctx context.Context, token string) (*sessions.CreatedSession, error)
	Destroy(ctx context.Context, token string) error
	DestroyAll(ctx context.Context, customerID uint) (int64, error)
	SetMFAVerified(ctx context.Context, token string, verified bool) error
	ListForCustomer(ctx context.Context, customerID uint) ([]*model.Session, error)
}

type MFAService interface {
	BeginEnrollment(ctx context.Context, customerID uint) (*mfa.Enrollment, error)
	CompleteEnrollment(ctx context.Context, customerID uint, pendingSecret string, code string) ([]string, error)
	VerifyLogin(ctx context.Context, customerID uint, token string, isBackupCode bool, meta mfa.ClientMeta) error
	Disable(ctx context.Context, customerID uint, code string) error
	RegenerateBackupCodes(ctx context.Context, customerID uint, code string) ([]string, error)
	Status(ctx context.Context, customerID uint) (*mfa.Status, error)
}

type customerInfoResponse struct {
	CustomerID  uint   `json:"customerId"`
	Email       string `json:"email"`
	CompanyName string `json:"companyName"`
	IsAdmin     bool   `json:"isAdmin"`
	MFAEnabled  bool   `json:"mfaEnabled"`
}

func newCustomerInfo(customer *model.Customer) customerInfoResponse {
	return customerInfoResponse{
		CustomerID:  customer.ID,
		Email:       customer.Email,
		CompanyName: customer.CompanyName,
		IsAdmin:     customer.IsAdmin,
		MFAEnabled:  customer.MFAEnabled,
	}
}
