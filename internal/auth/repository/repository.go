package repository

import authdomain "emailtrigger-backend/internal/auth/domain"

// UserRepository defines data access for users and their refresh tokens
type UserRepository interface {
	Create(user *authdomain.User) error
	FindByEmail(email string) (*authdomain.User, error)
	FindByID(id string) (*authdomain.User, error)
	Update(user *authdomain.User) error

	SaveRefreshToken(token *authdomain.RefreshToken) error
	FindRefreshToken(token string) (*authdomain.RefreshToken, error)
	DeleteRefreshToken(token string) error
}

// FCMTokenRepository defines the interface for FCM token operations
type FCMTokenRepository interface {
	SaveToken(userID, token, deviceInfo string) error
	DeleteToken(token string) error

	// TokensForUser returns the raw token strings for a user's devices
	TokensForUser(userID string) ([]string, error)
}
