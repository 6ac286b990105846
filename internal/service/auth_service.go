package service

import (
	"errors"

	"storyloom/internal/model"
	"storyloom/internal/repository"
	"storyloom/internal/util"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthService interface {
	Register(req RegisterRequest) (*model.User, string, error)
	Login(req LoginRequest) (*model.User, string, error)
	GetUser(userID string) (*model.User, error)
}

type RegisterRequest struct {
	Username    string `json:"username" binding:"required,min=3,max=50"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type authService struct {
	userRepo  repository.UserRepository
	jwtSecret string
}

func NewAuthService(userRepo repository.UserRepository, jwtSecret string) AuthService {
	return &authService{
		userRepo:  userRepo,
		jwtSecret: jwtSecret,
	}
}

// Register creates a user with a hashed password and issues a session token
func (s *authService) Register(req RegisterRequest) (*model.User, string, error) {
	if _, err := s.userRepo.FindByEmail(req.Email); err == nil {
		return nil, "", errors.New("email already registered")
	}
	if _, err := s.userRepo.FindByUsername(req.Username); err == nil {
		return nil, "", errors.New("username already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", errors.New("failed to hash password")
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
		Role:         model.RoleMember,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, "", errors.New("failed to create user")
	}

	token, err := util.GenerateToken(user.ID, user.DisplayName, user.Role, s.jwtSecret)
	if err != nil {
		return nil, "", errors.New("failed to generate token")
	}
	return user, token, nil
}

// Login verifies credentials and issues a session token
func (s *authService) Login(req LoginRequest) (*model.User, string, error) {
	user, err := s.userRepo.FindByEmail(req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", errors.New("invalid email or password")
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, "", errors.New("invalid email or password")
	}

	token, err := util.GenerateToken(user.ID, user.DisplayName, user.Role, s.jwtSecret)
	if err != nil {
		return nil, "", errors.New("failed to generate token")
	}
	return user, token, nil
}

// GetUser returns a user by id
func (s *authService) GetUser(userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(userID)
	if err != nil {
		return nil, errors.New("user not found")
	}
	return user, nil
}
