package dto

import "emailtrigger-backend/internal/account/domain"

type ConnectURLResponse struct {
	URL string `json:"url"`
}

type ConnectIMAPRequest struct {
	EmailAddress string `json:"email_address" binding:"required"`
	Password     string `json:"password" binding:"required"`
	Host         string `json:"host" binding:"required"`
}

type AccountsResponse struct {
	Accounts []*domain.ConnectedAccount `json:"accounts"`
}
