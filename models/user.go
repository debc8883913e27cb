package models

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dlvery/dlvery_backend/config"
	"github.com/dlvery/dlvery_backend/utils"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID                         int          `gorm:"primary_key" json:"id"`
	Username                   string       `gorm:"size:100;not null;uniqueIndex" json:"username"`
	PasswordHash               *string      `gorm:"size:255" json:"-"`
	Email                      string       `gorm:"size:255;not null;uniqueIndex" json:"email"`
	FullName                   string       `gorm:"size:100" json:"full_name"`
	Role                       UserRole     `gorm:"size:20;not null" json:"role"`
	OauthProvider              AuthProvider `gorm:"size:20;not null;default:LOCAL" json:"oauth_provider"`
	OauthProviderId            string       `gorm:"size:255" json:"-"`
	IsActive                   *bool        `gorm:"not null;default:true" json:"is_active"`
	EmailVerified              *bool        `gorm:"not null;default:false" json:"email_verified"`
	VerificationToken          *string      `gorm:"size:500;index" json:"-"`
	VerificationTokenExpiresAt *time.Time   `json:"-"`
	LastLoginAt                *time.Time   `json:"last_login_at"`
	CreatedAt                  time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                  time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
}

type RegisterRequest struct {
	Username        string `json:"username" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
	FullName        string `json:"full_name" binding:"required"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponse struct {
	Token    string   `json:"token,omitempty"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
	Message  string   `json:"message"`
}

// OAuthUserInfo is the provider-verified payload handed over by the OAuth
// callback. The handshake itself happens outside this module.
type OAuthUserInfo struct {
	Email      string `json:"email" binding:"required"`
	FullName   string `json:"full_name"`
	ProviderId string `json:"provider_id" binding:"required"`
}

// Register creates an inventory-team account and mails a verification
// link. The account stays unverified until VerifyEmail succeeds.
func Register(ctx context.Context, input *RegisterRequest) (*AuthResponse, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if !utils.IsValidEmail(email) {
		return nil, utils.ValidationError("email address is not valid")
	}
	if violations := utils.ValidatePassword(input.Password); len(violations) > 0 {
		return nil, utils.ValidationError("%s", strings.Join(violations, "; "))
	}
	if input.Password != input.ConfirmPassword {
		return nil, utils.ValidationError("Passwords do not match")
	}
	if err := utils.ValidateUnique[User](ctx, "username", username, nil); err != nil {
		return nil, err
	}
	if err := utils.ValidateUnique[User](ctx, "email", email, nil); err != nil {
		return nil, err
	}

	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	hashStr := string(hash)

	user := User{
		Username:      username,
		PasswordHash:  &hashStr,
		Email:         email,
		FullName:      strings.TrimSpace(input.FullName),
		Role:          RoleInventoryTeam,
		OauthProvider: ProviderLocal,
		IsActive:      utils.NewTrue(),
		EmailVerified: utils.NewFalse(),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	if err := sendVerificationEmail(ctx, &user); err != nil {
		config.LogError(config.GetLogger(), "user", "Register", "send verification email", user.Email, err)
	}

	return &AuthResponse{
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
		Message:  "Registration successful! Please check your email and verify your account before logging in.",
	}, nil
}

// Login authenticates a local user and issues a session token. The role
// gate keeps inventory logins and agent logins on their own doors.
func Login(ctx context.Context, input *LoginRequest, requiredRole UserRole) (*AuthResponse, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("username = ?", strings.TrimSpace(input.Username)).First(&user).Error; err != nil {
		return nil, utils.UnauthorizedError("Invalid credentials")
	}

	if user.PasswordHash == nil {
		return nil, utils.UnauthorizedError("Invalid credentials")
	}
	if err := utils.ComparePassword(*user.PasswordHash, input.Password); err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return nil, utils.UnauthorizedError("Invalid credentials")
		}
		return nil, err
	}

	if user.Role != requiredRole {
		return nil, utils.UnauthorizedError("Access denied: Invalid role for this login")
	}
	if !utils.DereferencePtr(user.IsActive) {
		return nil, utils.UnauthorizedError("user is disabled")
	}
	if !utils.DereferencePtr(user.EmailVerified) {
		return nil, utils.UnauthorizedError("Please verify your email before logging in")
	}

	return issueSession(ctx, &user, "Login successful")
}

// UpsertOAuthUser records or refreshes a provider-verified delivery agent
// and issues a session. The provider vouches for the email, so the
// account is verified on creation.
func UpsertOAuthUser(ctx context.Context, input *OAuthUserInfo) (*AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if !utils.IsValidEmail(email) {
		return nil, utils.ValidationError("email address is not valid")
	}

	db := config.GetDB()
	var user User
	err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		user = User{
			Username:        email,
			Email:           email,
			FullName:        strings.TrimSpace(input.FullName),
			Role:            RoleDeliveryTeam,
			OauthProvider:   ProviderGoogle,
			OauthProviderId: input.ProviderId,
			IsActive:        utils.NewTrue(),
			EmailVerified:   utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, err
		}
	} else {
		if user.Role != RoleDeliveryTeam {
			return nil, utils.UnauthorizedError("Access denied: Invalid role for this login")
		}
		if user.OauthProviderId == "" {
			user.OauthProvider = ProviderGoogle
			user.OauthProviderId = input.ProviderId
			if err := db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
				"OauthProvider":   user.OauthProvider,
				"OauthProviderId": user.OauthProviderId,
			}).Error; err != nil {
				return nil, err
			}
		}
	}

	return issueSession(ctx, &user, "Login successful")
}

func issueSession(ctx context.Context, user *User, message string) (*AuthResponse, error) {
	db := config.GetDB()
	now := time.Now()
	if err := db.WithContext(ctx).Model(user).Update("LastLoginAt", &now).Error; err != nil {
		return nil, err
	}

	token, err := utils.JwtGenerate(user.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, err
	}

	token_lifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil {
		return nil, err
	}

	// add new token to the user's tokens set
	if err := config.AddRedisSet("Tokens:"+user.Username, token); err != nil {
		return nil, err
	}
	if err := config.SetRedisValue("Token:"+token, user.Username, time.Duration(token_lifespan)*time.Hour); err != nil {
		return nil, err
	}

	return &AuthResponse{
		Token:    token,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
		Message:  message,
	}, nil
}

func Logout(ctx context.Context) (bool, error) {
	token, ok := utils.GetTokenFromContext(ctx)
	if !ok {
		return false, utils.UnauthorizedError("no session token")
	}
	if err := config.RemoveRedisKey("Token:" + fmt.Sprint(token)); err != nil {
		return false, err
	}
	username, ok := utils.GetUsernameFromContext(ctx)
	if !ok {
		return true, nil
	}
	if err := config.RemoveRedisSetMember("Tokens:"+username, token); err != nil {
		return false, err
	}
	return true, nil
}

// DestroyAllSessions drops every outstanding token for the user.
func (user *User) DestroyAllSessions(ctx context.Context) error {
	allTokens, err := config.GetRedisSetMembers("Tokens:" + user.Username)
	if err != nil {
		return err
	}
	for _, token := range allTokens {
		if err := config.RemoveRedisKey("Token:" + token); err != nil {
			return err
		}
	}
	return config.RemoveRedisKey("Tokens:" + user.Username)
}

func sendVerificationEmail(ctx context.Context, user *User) error {
	token, err := utils.GenerateVerificationToken()
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(24 * time.Hour)

	db := config.GetDB()
	if err := db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"VerificationToken":          token,
		"VerificationTokenExpiresAt": expiresAt,
	}).Error; err != nil {
		return err
	}

	name := user.FullName
	if name == "" {
		name = user.Username
	}
	baseUrl := os.Getenv("APP_BASE_URL")
	if baseUrl == "" {
		baseUrl = "http://localhost:8080"
	}
	verificationUrl := baseUrl + "/api/auth/verify-email?token=" + token

	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Thank you for registering with Dlvery Platform!\n\n"+
			"Please click the link below to verify your email address:\n%s\n\n"+
			"This verification link will expire in 24 hours.\n\n"+
			"If you didn't create an account with us, please ignore this email.\n\n"+
			"Best regards,\nDlvery Team",
		name, verificationUrl)

	return config.GetMailer().Send(user.Email, "Verify Your Email - Dlvery Platform", body)
}

// VerifyEmail consumes a verification token. Unknown or expired tokens
// return false without error detail; the caller shows a generic message.
func VerifyEmail(ctx context.Context, token string) (bool, error) {
	if strings.TrimSpace(token) == "" {
		return false, nil
	}

	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("verification_token = ?", token).First(&user).Error; err != nil {
		return false, nil
	}
	if user.VerificationTokenExpiresAt == nil || user.VerificationTokenExpiresAt.Before(time.Now()) {
		return false, nil
	}

	if err := db.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"EmailVerified":              true,
		"VerificationToken":          nil,
		"VerificationTokenExpiresAt": nil,
	}).Error; err != nil {
		return false, err
	}

	if err := sendWelcomeEmail(&user); err != nil {
		config.LogError(config.GetLogger(), "user", "VerifyEmail", "send welcome email", user.Email, err)
	}
	return true, nil
}

func ResendVerification(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return utils.NotFoundError("user not found")
	}
	if utils.DereferencePtr(user.EmailVerified) {
		return utils.ConflictError("Email is already verified")
	}
	return sendVerificationEmail(ctx, &user)
}

func sendWelcomeEmail(user *User) error {
	name := user.FullName
	if name == "" {
		name = user.Username
	}
	dashboard := "Delivery"
	if user.Role == RoleInventoryTeam {
		dashboard = "Inventory"
	}
	frontendUrl := os.Getenv("FRONTEND_URL")
	if frontendUrl == "" {
		frontendUrl = "http://localhost:4200"
	}

	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Welcome to Dlvery Platform! Your email has been successfully verified.\n\n"+
			"You can now access your %s dashboard at: %s\n\n"+
			"If you have any questions, please don't hesitate to contact our support team.\n\n"+
			"Best regards,\nDlvery Team",
		name, dashboard, frontendUrl)

	return config.GetMailer().Send(user.Email, "Welcome to Dlvery Platform!", body)
}

func GetUserByUsername(ctx context.Context, username string) (*User, error) {
	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, utils.NotFoundError("user not found: %s", username)
	}
	return &user, nil
}
