package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrInvalidWallet signals a wallet address that is not a hex address.
	ErrInvalidWallet = errors.New("auth: invalid wallet address")
	// ErrNoWallet signals an operation that needs a linked wallet first.
	ErrNoWallet = errors.New("auth: no wallet linked")
)

// KeyPublisher mirrors wallet identity writes to the on-chain registry so
// counterparties can fetch keys and profiles without trusting this backend.
type KeyPublisher interface {
	SetEncryptionPublicKey(ctx context.Context, address, key string) error
	SetProfileCID(ctx context.Context, address, cid string) error
}

// Service handles authentication and wallet-identity business logic.
type Service struct {
	repo      Repository
	publisher KeyPublisher
	jwtSecret []byte
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token string
	User  User
}

// NewService creates a new authentication service. publisher may be nil,
// which disables the on-chain mirror of keys and profiles.
func NewService(repo Repository, publisher KeyPublisher, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		publisher: publisher,
		jwtSecret: []byte(jwtSecret),
	}
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	if req.Email == "" || req.FullName == "" {
		return nil, fmt.Errorf("auth: email and full_name are required")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = RoleCompany
	}
	if !isValidRole(role) {
		return nil, fmt.Errorf("auth: invalid role %q", role)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        req.Email,
		FullName:     req.FullName,
		PasswordHash: string(passwordHash),
		Role:         role,
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Login authenticates a user and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.generateToken(user.ID, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{
		Token: token,
		User:  user,
	}, nil
}

// GetUserByID retrieves user information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// LinkWallet binds a wallet address to the account. Addresses are stored
// lower-cased so on-chain participant matching stays case-insensitive.
func (s *Service) LinkWallet(ctx context.Context, userID, walletAddress string) (*User, error) {
	addr := strings.ToLower(strings.TrimSpace(walletAddress))
	if !validAddress(addr) {
		return nil, ErrInvalidWallet
	}

	user, err := s.repo.SetWallet(ctx, userID, addr)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// RegisterEncryptionKey stores the wallet's encryption public key and
// publishes it to the on-chain registry. The stored copy is a cache; the
// registry remains authoritative for counterparties.
func (s *Service) RegisterEncryptionKey(ctx context.Context, userID, publicKey string) (*User, error) {
	if strings.TrimSpace(publicKey) == "" {
		return nil, fmt.Errorf("auth: empty encryption key")
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.WalletAddress == nil {
		return nil, ErrNoWallet
	}

	if s.publisher != nil {
		if err := s.publisher.SetEncryptionPublicKey(ctx, *user.WalletAddress, publicKey); err != nil {
			return nil, fmt.Errorf("auth: publish encryption key: %w", err)
		}
	}

	updated, err := s.repo.SetEncryptionPublicKey(ctx, userID, publicKey)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// PublishProfile records the content id of the user's profile document and
// mirrors it on chain.
func (s *Service) PublishProfile(ctx context.Context, userID, cid string) (*User, error) {
	if strings.TrimSpace(cid) == "" {
		return nil, fmt.Errorf("auth: empty profile cid")
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.WalletAddress == nil {
		return nil, ErrNoWallet
	}

	if s.publisher != nil {
		if err := s.publisher.SetProfileCID(ctx, *user.WalletAddress, cid); err != nil {
			return nil, fmt.Errorf("auth: publish profile: %w", err)
		}
	}

	updated, err := s.repo.SetProfileCID(ctx, userID, cid)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// VerifyToken validates a JWT token and returns the user ID and role.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		return "", "", fmt.Errorf("auth: parse token: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(string)
		if !ok {
			return "", "", fmt.Errorf("auth: invalid user_id in token")
		}
		roleStr, ok := claims["role"].(string)
		if !ok {
			return "", "", fmt.Errorf("auth: invalid role in token")
		}
		role := Role(roleStr)
		if !isValidRole(role) {
			return "", "", fmt.Errorf("auth: invalid role %q in token", roleStr)
		}
		return userID, role, nil
	}

	return "", "", fmt.Errorf("auth: invalid token")
}

// generateToken creates a JWT token for the user.
func (s *Service) generateToken(userID string, role Role) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(24 * time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleCompany, RoleFreelancer, RoleArbitrator:
		return true
	default:
		return false
	}
}

func validAddress(addr string) bool {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return false
	}
	for _, c := range addr[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
