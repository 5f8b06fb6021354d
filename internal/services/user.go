package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/starksgalaxy/errands-gobackend/internal/apperr"
	"github.com/starksgalaxy/errands-gobackend/internal/models"
	"github.com/starksgalaxy/errands-gobackend/internal/repository"
)

// MinTopUp is the smallest wallet top-up accepted, in KSH.
const MinTopUp = 1000

// UserService covers identity (register, login, JWT issuance) and the
// wallet.
type UserService struct {
	store     repository.Store
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewUserService(store repository.Store, jwtSecret string, tokenTTL time.Duration) *UserService {
	return &UserService{store: store, jwtSecret: []byte(jwtSecret), tokenTTL: tokenTTL}
}

func (s *UserService) Register(ctx context.Context, name, email, password, phone string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return nil, fmt.Errorf("name and email are required: %w", apperr.ErrInvalidArgument)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("password must be at least 8 characters: %w", apperr.ErrInvalidArgument)
	}

	if _, err := s.store.Users().GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", apperr.ErrInvalidArgument)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Name:      name,
		Email:     email,
		HPassword: string(hash),
		Phone:     strings.TrimSpace(phone),
	}
	if _, err := s.store.Users().Create(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("User registered: id=%s email=%s", user.ID, email)
	return user, nil
}

// Login verifies credentials and returns a signed bearer token carrying
// the user id as subject.
func (s *UserService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.store.Users().GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", nil, fmt.Errorf("invalid email or password: %w", apperr.ErrUnauthenticated)
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HPassword), []byte(password)); err != nil {
		return "", nil, fmt.Errorf("invalid email or password: %w", apperr.ErrUnauthenticated)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.store.Users().GetByID(ctx, id)
}

// TopUpWallet credits the wallet and records the movement atomically.
func (s *UserService) TopUpWallet(ctx context.Context, userID string, amount float64) error {
	if amount < MinTopUp {
		return fmt.Errorf("minimum top-up is KSH %d: %w", MinTopUp, apperr.ErrInvalidArgument)
	}

	err := s.store.Atomic(ctx, func(ctx context.Context) error {
		if err := s.store.Users().Credit(ctx, userID, amount); err != nil {
			return err
		}
		return s.store.Transactions().Append(ctx, &models.Transaction{
			UserID: userID,
			Amount: amount,
			Type:   models.TxnWalletTopUp,
			Status: "completed",
		})
	})
	if err != nil {
		return err
	}

	log.Printf("Wallet topped up: user=%s amount=%.2f", userID, amount)
	return nil
}

// Wallet returns the current balance and recent movements, newest first.
func (s *UserService) Wallet(ctx context.Context, userID string) (float64, []models.Transaction, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return 0, nil, err
	}
	txns, err := s.store.Transactions().ListByUser(ctx, userID, 20)
	if err != nil {
		return 0, nil, err
	}
	return user.WalletBalance, txns, nil
}
