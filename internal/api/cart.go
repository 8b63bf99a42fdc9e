package api

import (
	"net/http"

	"storefront/internal/cart"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type cartResponse struct {
	Items     []cart.Item     `json:"items"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
	Message   cart.Ack        `json:"message,omitempty"`
}

type addCartItemRequest struct {
	ProductID string `json:"product_id"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

func newCartResponse(c *cart.Cart, ack cart.Ack) cartResponse {
	return cartResponse{
		Items:     c.Items(),
		Total:     c.Total(),
		ItemCount: c.ItemCount(),
		Message:   ack,
	}
}

// cartID returns the cart cookie, issuing a new one when create is set
func (h *Handler) cartID(c *gin.Context, create bool) string {
	id, err := c.Cookie(h.cookies.CartName)
	if err == nil && id != "" {
		return id
	}
	if !create {
		return ""
	}

	id = uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookies.CartName, id, int(h.cookies.CartTTL.Seconds()), "/", "", h.cookies.Secure, true)
	return id
}

func (h *Handler) getCart(c *gin.Context) {
	id := h.cartID(c, false)
	if id == "" {
		c.JSON(http.StatusOK, cartResponse{Items: []cart.Item{}, Total: decimal.Zero})
		return
	}

	ct, err := h.carts.Open(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(ct, ""))
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ct, ack, err := h.carts.AddProduct(c.Request.Context(), h.cartID(c, true), req.ProductID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(ct, ack))
}

func (h *Handler) updateCartItem(c *gin.Context) {
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	ct, ack, err := h.carts.UpdateQuantity(c.Request.Context(), h.cartID(c, true), c.Param("productId"), req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(ct, ack))
}

func (h *Handler) removeCartItem(c *gin.Context) {
	ct, ack, err := h.carts.RemoveItem(c.Request.Context(), h.cartID(c, true), c.Param("productId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(ct, ack))
}

func (h *Handler) clearCart(c *gin.Context) {
	ct, ack, err := h.carts.Clear(c.Request.Context(), h.cartID(c, true))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartResponse(ct, ack))
}

// checkoutCart places an order from the cart contents
func (h *Handler) checkoutCart(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	id := h.cartID(c, false)
	if id == "" {
		respondError(c, &service.ValidationError{Fields: map[string]string{"items": "cart is empty"}})
		return
	}

	order, err := h.carts.Checkout(c.Request.Context(), identityFrom(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}
