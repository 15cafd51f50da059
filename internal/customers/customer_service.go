package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/credentials"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrWeakPassword       = errors.New("password does not meet the policy")
	ErrEmailTaken         = errors.New("email already registered")
)

type CustomerService struct {
	customerRepo CustomerRepository
}

func NewCustomerService(customerRepo CustomerRepository) *CustomerService {
	return &CustomerService{customerRepo: customerRepo}
}

func (s *CustomerService) GetByID(ctx context.Context, id uint) (*model.Customer, error) {
	return s.customerRepo.GetByID(ctx, id)
}

func (s *CustomerService) GetByEmail(ctx context.Context, email string) (*model.Customer, error) {
	return s.customerRepo.GetByEmail(ctx, normalizeEmail(email))
}

// Authenticate checks the password for the given email. Unknown accounts and
// wrong passwords are indistinguishable to the caller.
func (s *CustomerService) Authenticate(ctx context.Context, email string, password string) (*model.Customer, error) {
	customer, err := s.customerRepo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrCustomerNotFound) {
		// burn a hash comparison anyway so timing does not leak existence
		credentials.Check(password, "$2a$10$NqVZoJ8glelRzqAl1E3BW.xRrdfOVAZb1xz8bUL3aNxIKFJATnFhe")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !credentials.Check(password, customer.Password) {
		return nil, ErrInvalidCredentials
	}
	if customer.Disabled {
		return nil, ErrAccountDisabled
	}
	return customer, nil
}

type CreateCustomerOptions struct {
	Email       string
	CompanyName string
	Password    string
	IsAdmin     bool
}

func (s *CustomerService) CreateCustomer(ctx context.Context, opts CreateCustomerOptions) (*model.Customer, error) {
	email := normalizeEmail(opts.Email)
	if _, err := s.customerRepo.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrCustomerNotFound) {
		return nil, err
	}

	if result := credentials.Validate(opts.Password, credentials.DefaultPolicy); !result.IsValid {
		return nil, fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(result.Errors, "; "))
	}
	passwordHash, err := credentials.Hash(opts.Password)
	if err != nil {
		return nil, err
	}

	customer := &model.Customer{
		Email:       email,
		CompanyName: opts.CompanyName,
		Password:    passwordHash,
		IsAdmin:     opts.IsAdmin,
	}
	if err := s.customerRepo.Create(ctx, customer); err != nil {
		return nil, err
	}
	return customer, nil
}

func (s *CustomerService) UpdatePassword(ctx context.Context, customerID uint, newPassword string) error {
	if result := credentials.Validate(newPassword, credentials.DefaultPolicy); !result.IsValid {
		return fmt.Errorf("%w: %s", ErrWeakPassword, strings.Join(result.Errors, "; "))
	}
	passwordHash, err := credentials.Hash(newPassword)
	if err != nil {
		return err
	}
	return s.customerRepo.Updates(ctx, customerID, map[string]interface{}{
		"password": passwordHash,
	})
}

// SetDisabled flips the account switch. Disabled accounts fail Authenticate
// but keep their data; existing sessions must be revoked by the caller.
func (s *CustomerService) SetDisabled(ctx context.Context, customerID uint, disabled bool) error {
	return s.customerRepo.Updates(ctx, customerID, map[string]interface{}{
		"disabled": disabled,
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
