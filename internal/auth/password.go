package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/clinic-links/internal/apperror"
	"github.com/sakif/clinic-links/internal/model"
)

// defaultCost is the bcrypt work factor, roughly 250ms per hash on a
// current server. Logins are rare here, so the cost is never felt.
const defaultCost = 12

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

// PasswordService hashes admin passwords and checks submitted credentials.
type PasswordService struct {
	cost int

	// dummy is compared against when the username does not match, so a
	// wrong username costs as much time as a wrong password.
	dummy []byte
}

// NewPasswordService creates a PasswordService with the default cost.
func NewPasswordService() *PasswordService {
	return newPasswordServiceWithCost(defaultCost)
}

// NewPasswordServiceForTest lets other packages' tests use a low cost (4 is
// the bcrypt minimum). Never use it in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return newPasswordServiceWithCost(cost)
}

func newPasswordServiceWithCost(cost int) *PasswordService {
	dummy, err := bcrypt.GenerateFromPassword([]byte("clinic-links-dummy"), cost)
	if err != nil {
		// Only an out-of-range cost gets here.
		panic(fmt.Sprintf("auth: bcrypt cost %d: %v", cost, err))
	}
	return &PasswordService{cost: cost, dummy: dummy}
}

// Hash returns the bcrypt hash of plaintext, e.g.
//
//	$2a$12$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", apperror.ValidationFailed("password", "password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}
	return string(hashed), nil
}

// NewAdmin hashes cred into a storable AdminUser.
func (p *PasswordService) NewAdmin(cred model.AdminCredential) (*model.AdminUser, error) {
	hash, err := p.Hash(cred.Password)
	if err != nil {
		return nil, err
	}
	return &model.AdminUser{Username: cred.Username, PasswordHash: hash}, nil
}

// Verify checks plaintext against a stored hash.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return apperror.Unauthorized("invalid credentials")
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// Check compares a submitted credential with the stored admin. Both a wrong
// username and a wrong password produce the same ErrUnauthorized.
func (p *PasswordService) Check(stored *model.AdminUser, cred model.AdminCredential) error {
	if subtle.ConstantTimeCompare([]byte(stored.Username), []byte(cred.Username)) != 1 {
		bcrypt.CompareHashAndPassword(p.dummy, []byte(cred.Password))
		return apperror.Unauthorized("invalid credentials")
	}
	return p.Verify(stored.PasswordHash, cred.Password)
}
