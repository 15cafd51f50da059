package mfa

import (
	"context"
	"errors"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/audit"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/customers"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
)

// ClientMeta tags audit rows with the request origin.
type ClientMeta struct {
	IP        string
	UserAgent string
}

type Enrollment struct {
	Secret     string // base32, handed to the client exactly once
	OTPAuthURL string // provisioning URI for an external QR renderer
}

type Status struct {
	Enabled              bool
	BackupCodesRemaining int
	LastChallenge        *time.Time
}

// MFAService drives the per-customer state machine
// Disabled → PendingEnrollment → Enabled → Disabled. The pending secret lives
// client-side between BeginEnrollment and CompleteEnrollment; nothing is
// persisted until a live code proves the authenticator works.
type MFAService struct {
	customerRepo   customers.CustomerRepository
	backupCodeRepo customers.BackupCodeRepository
	nowFunc        func() time.Time
}

func NewMFAService(customerRepo customers.CustomerRepository, backupCodeRepo customers.BackupCodeRepository) *MFAService {
	return &MFAService{
		customerRepo:   customerRepo,
		backupCodeRepo: backupCodeRepo,
		nowFunc:        time.Now,
	}
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    params.MFAPeriod,
		Skew:      params.MFASkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA256,
	}
}

func (s *MFAService) validateCode(code string, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, s.nowFunc().UTC(), validateOpts())
	return err == nil && ok
}

// BeginEnrollment generates a fresh secret and provisioning URI. The secret is
// deliberately not stored yet; an abandoned enrollment leaves no state behind.
func (s *MFAService) BeginEnrollment(ctx context.Context, customerID uint) (*Enrollment, error) {
	customer, err := s.customerRepo.GetByID(ctx, customerID)
	if errors.Is(err, customers.ErrCustomerNotFound) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	if customer.MFAEnabled {
		return nil, ErrAlreadyEnrolled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      params.MFAIssuer,
		AccountName: customer.Email,
		Period:      params.MFAPeriod,
		SecretSize:  32,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA256,
	})
	if err != nil {
		return nil, err
	}
	return &Enrollment{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// CompleteEnrollment verifies one live code against the pending secret, then
// persists the secret and mints the backup codes. The plaintext codes are
// returned exactly once and never retrievable again.
func (s *MFAService) CompleteEnrollment(ctx context.Context, customerID uint, pendingSecret string, code string) ([]string, error) {
	customer, err := s.customerRepo.GetByID(ctx, customerID)
	if errors.Is(err, customers.ErrCustomerNotFound) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	if customer.MFAEnabled {
		return nil, ErrAlreadyEnrolled
	}
	if !s.validateCode(code, pendingSecret) {
		return nil, ErrInvalidCode
	}

	backupCodes := generateBackupCodes(params.MFABackupCodeCount)
	if err := s.backupCodeRepo.ReplaceAll(ctx, customerID, hashBackupCodes(backupCodes)); err != nil {
		return nil, err
	}
	now := s.nowFunc()
	err = s.customerRepo.Updates(ctx, customerID, map[string]interface{}{
		"mfa_enabled":     true,
		"mfa_secret":      pendingSecret,
		"mfa_verified_at": &now,
	})
	if err != nil {
		return nil, err
	}

	audit.RecordEvent(ctx, audit.SecurityEvent{
		CustomerID: customerID,
		Action:     audit.ActionMFAEnrolled,
		Resource:   "mfa",
	})
	return backupCodes, nil
}

// VerifyLogin checks a TOTP code, or consumes a backup code when isBackupCode
// is set. Every attempt is audited. Backup-code consumption is atomic at the
// store: a code can never verify twice, even for concurrent submissions.
func (s *MFAService) VerifyLogin(ctx context.Context, customerID uint, token string, isBackupCode bool, meta ClientMeta) error {
	customer, err := s.customerRepo.GetByID(ctx, customerID)
	if errors.Is(err, customers.ErrCustomerNotFound) {
		return ErrCustomerNotFound
	}
	if err != nil {
		return err
	}
	if !customer.MFAEnabled || customer.MFASecret == "" {
		return ErrNotEnrolled
	}

	method := "totp"
	verified := false
	if isBackupCode {
		method = "backup_code"
		verified, err = s.backupCodeRepo.Consume(ctx, customerID, hashBackupCode(token))
		if err != nil {
			return err
		}
	} else {
		verified = s.validateCode(token, customer.MFASecret)
	}

	action := audit.ActionMFAVerifyFailure
	if verified {
		action = audit.ActionMFAVerifySuccess
	}
	audit.RecordEvent(ctx, audit.SecurityEvent{
		CustomerID: customerID,
		Action:     action,
		Resource:   "mfa",
		IP:         meta.IP,
		UserAgent:  meta.UserAgent,
		Metadata:   map[string]any{"method": method},
	})

	if !verified {
		return ErrInvalidCode
	}
	now := s.nowFunc()
	return s.customerRepo.Updates(ctx, customerID, map[string]interface{}{
		"last_mfa_challenge": &now,
	})
}

// Disable clears the secret and backup codes. It demands a live TOTP code, not
// a backup code: a stolen recovery code must not be enough to switch the
// protection off.
func (s *MFAService) Disable(ctx context.Context, customerID uint, code string) error {
	if err := s.requireTOTP(ctx, customerID, code); err != nil {
		return err
	}
	if err := s.backupCodeRepo.DeleteAll(ctx, customerID); err != nil {
		return err
	}
	err := s.customerRepo.Updates(ctx, customerID, map[string]interface{}{
		"mfa_enabled":     false,
		"mfa_secret":      "",
		"mfa_verified_at": nil,
	})
	if err != nil {
		return err
	}
	audit.RecordEvent(ctx, audit.SecurityEvent{
		CustomerID: customerID,
		Action:     audit.ActionMFADisabled,
		Resource:   "mfa",
	})
	return nil
}

// RegenerateBackupCodes replaces the whole hash set after a live TOTP check,
// returning the new plaintext codes once.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, customerID uint, code string) ([]string, error) {
	if err := s.requireTOTP(ctx, customerID, code); err != nil {
		return nil, err
	}
	backupCodes := generateBackupCodes(params.MFABackupCodeCount)
	if err := s.backupCodeRepo.ReplaceAll(ctx, customerID, hashBackupCodes(backupCodes)); err != nil {
		return nil, err
	}
	audit.RecordEvent(ctx, audit.SecurityEvent{
		CustomerID: customerID,
		Action:     audit.ActionBackupCodesRenewed,
		Resource:   "mfa",
	})
	return backupCodes, nil
}

func (s *MFAService) Status(ctx context.Context, customerID uint) (*Status, error) {
	customer, err := s.customerRepo.GetByID(ctx, customerID)
	if errors.Is(err, customers.ErrCustomerNotFound) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	remaining, err := s.backupCodeRepo.Count(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return &Status{
		Enabled:              customer.MFAEnabled,
		BackupCodesRemaining: remaining,
		LastChallenge:        customer.LastMFAChallenge,
	}, nil
}

func (s *MFAService) requireTOTP(ctx context.Context, customerID uint, code string) error {
	customer, err := s.customerRepo.GetByID(ctx, customerID)
	if errors.Is(err, customers.ErrCustomerNotFound) {
		return ErrCustomerNotFound
	}
	if err != nil {
		return err
	}
	if !customer.MFAEnabled || customer.MFASecret == "" {
		return ErrNotEnrolled
	}
	if !s.validateCode(code, customer.MFASecret) {
		return ErrTOTPRequired
	}
	return nil
}
