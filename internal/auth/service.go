package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/db"
	"github.com/watchcoin/backend/internal/ledger"
	"github.com/watchcoin/backend/internal/models"
)

// ErrDuplicateEmail is returned when registering with an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

const (
	tokenTTL          = 24 * time.Hour
	minPasswordLength = 8
	maxDisplayName    = 64
)

// Principal is the authenticated caller carried on the request context.
type Principal struct {
	UserID uuid.UUID
	Role   string
	Status string
}

// IsStaff reports whether the caller may moderate content.
func (p Principal) IsStaff() bool {
	return p.Role == models.RoleAdmin || p.Role == models.RoleModerator
}

type UserStore interface {
	Create(ctx context.Context, tx pgx.Tx, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	UpdateAccess(ctx context.Context, id uuid.UUID, status, role string) (*models.User, error)
}

type Service interface {
	Register(ctx context.Context, email, password, displayName string) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	ValidateToken(ctx context.Context, token string) (Principal, error)
	IssueToken(u *models.User) (string, error)
}

type service struct {
	repo        UserStore
	db          db.TxBeginner
	ledger      ledger.Service
	secret      []byte
	signupBonus int64
	now         func() time.Time
}

func NewService(repo UserStore, txb db.TxBeginner, ledgerSvc ledger.Service, secret string, signupBonus int64) Service {
	return &service{
		repo:        repo,
		db:          txb,
		ledger:      ledgerSvc,
		secret:      []byte(secret),
		signupBonus: signupBonus,
		now:         time.Now,
	}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role   string `json:"role"`
	Status string `json:"status"`
}

func (s *service) Register(ctx context.Context, email, password, displayName string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.Validation("email", "email address is invalid")
	}
	if len(password) < minPasswordLength {
		return nil, apperror.Validation("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if displayName == "" || len(displayName) > maxDisplayName {
		return nil, apperror.Validation("display_name", fmt.Sprintf("display name must be 1 to %d characters", maxDisplayName))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Role:         models.RoleUser,
		Status:       models.StatusActive,
	}

	err = db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.repo.Create(ctx, tx, u); err != nil {
			return err
		}
		if s.signupBonus <= 0 {
			return nil
		}
		t, err := s.ledger.Adjust(ctx, tx, ledger.Entry{
			UserID:    u.ID,
			Amount:    s.signupBonus,
			Reason:    "signup bonus",
			Reference: "signup:" + u.ID.String(),
		})
		if err != nil {
			return err
		}
		u.Balance = t.BalanceAfter
		return nil
	})
	if errors.Is(err, ErrDuplicateEmail) {
		return nil, apperror.Conflict("email already registered")
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, err
	}
	if u == nil {
		return "", nil, apperror.Unauthorized("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperror.Unauthorized("invalid credentials")
	}
	if u.Status == models.StatusBanned {
		return "", nil, apperror.State("account is banned")
	}
	token, err := s.IssueToken(u)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

func (s *service) IssueToken(u *models.User) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role:   u.Role,
		Status: u.Status,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (Principal, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return Principal{}, apperror.Unauthorized("invalid or expired token")
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return Principal{}, apperror.Unauthorized("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Principal{}, apperror.Unauthorized("invalid token subject")
	}
	return Principal{UserID: id, Role: c.Role, Status: c.Status}, nil
}
