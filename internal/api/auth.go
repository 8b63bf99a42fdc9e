package api

import (
	"errors"
	"net/http"
	"time"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) setSessionCookie(c *gin.Context, session *service.Session) {
	maxAge := int(time.Until(session.ExpiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookies.SessionName, session.Token, maxAge, "/", "", h.cookies.Secure, true)
}

// login handles sign-in and sets the session cookie
func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session, err := h.accounts.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, session)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    session.User,
	})
}

// register handles customer sign-up and signs the new account in
func (h *Handler) register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	session, err := h.accounts.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	h.setSessionCookie(c, session)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"user":    session.User,
	})
}

// logout clears the session cookie
func (h *Handler) logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookies.SessionName, "", -1, "/", "", h.cookies.Secure, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// me returns the signed-in account, or null for anonymous callers
func (h *Handler) me(c *gin.Context) {
	identity := identityFrom(c)
	if identity == nil {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}

	user, err := h.accounts.Me(c.Request.Context(), identity)
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"user": nil})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// listCustomers handles the admin customer listing
func (h *Handler) listCustomers(c *gin.Context) {
	customers, err := h.accounts.ListCustomers(c.Request.Context(), identityFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, customers)
}
