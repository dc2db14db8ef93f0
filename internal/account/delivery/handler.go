package delivery

import (
	"errors"
	"net/http"

	"emailtrigger-backend/internal/account/domain"
	"emailtrigger-backend/internal/account/dto"
	"emailtrigger-backend/internal/account/usecase"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	accountUsecase usecase.AccountUsecase
}

func NewAccountHandler(accountUsecase usecase.AccountUsecase) *AccountHandler {
	return &AccountHandler{
		accountUsecase: accountUsecase,
	}
}

func parseKind(s string) (domain.ProviderKind, bool) {
	switch domain.ProviderKind(s) {
	case domain.ProviderGmail, domain.ProviderOutlook:
		return domain.ProviderKind(s), true
	}
	return "", false
}

// Connect returns the provider consent URL the frontend redirects to
func (h *AccountHandler) Connect(c *gin.Context) {
	userID := c.GetString("userID")

	kind, ok := parseKind(c.Param("provider"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return
	}

	url, err := h.accountUsecase.ConnectURL(userID, kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.ConnectURLResponse{URL: url})
}

// Callback finishes the OAuth connect flow
func (h *AccountHandler) Callback(c *gin.Context) {
	kind, ok := parseKind(c.Param("provider"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider"})
		return
	}

	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing state or code"})
		return
	}

	account, err := h.accountUsecase.HandleCallback(c.Request.Context(), kind, state, code)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidState) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, account)
}

// ConnectIMAP connects a plain IMAP mailbox with host and password
func (h *AccountHandler) ConnectIMAP(c *gin.Context) {
	userID := c.GetString("userID")

	var req dto.ConnectIMAPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accountUsecase.ConnectIMAP(c.Request.Context(), userID, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, account)
}

// List returns the user's connected accounts
func (h *AccountHandler) List(c *gin.Context) {
	userID := c.GetString("userID")

	accounts, err := h.accountUsecase.List(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, dto.AccountsResponse{Accounts: accounts})
}

// Revoke disconnects an account
func (h *AccountHandler) Revoke(c *gin.Context) {
	userID := c.GetString("userID")
	id := c.Param("id")

	if err := h.accountUsecase.Revoke(userID, id); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "account disconnected"})
}

// CheckPermissions probes what the account's credentials can still do
func (h *AccountHandler) CheckPermissions(c *gin.Context) {
	userID := c.GetString("userID")
	id := c.Param("id")

	perms, err := h.accountUsecase.CheckPermissions(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, perms)
}
