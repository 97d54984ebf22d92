package http_api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/chartsboard/chartsboard/internal/auth"
	"github.com/chartsboard/chartsboard/internal/models"
)

const userContextKey = "user"

// authMiddleware verifies the mini-app init data on every request and
// upserts the caller. The verified identity is the only source of the user
// id; the client never sends it explicitly.
func (s *HTTPServer) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		initData := c.GetHeader("X-Init-Data")
		if initData == "" {
			if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "tma ") {
				initData = strings.TrimPrefix(header, "tma ")
			}
		}
		if initData == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Missing init data",
			})
			return
		}

		profile, err := s.verifier.Verify(initData)
		if err != nil {
			s.logger.Debug("Init data verification failed", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid init data",
			})
			return
		}

		user, _, err := s.core.InitUser(c.Request.Context(), *profile, auth.ExtractRefCode(initData))
		if err != nil {
			s.logger.Error("Failed to init user", "tg_id", profile.TgID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "Failed to load user",
			})
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

func (s *HTTPServer) currentUser(c *gin.Context) *models.User {
	return c.MustGet(userContextKey).(*models.User)
}

// apiError maps business errors to HTTP statuses.
func (s *HTTPServer) apiError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInsufficientBalance):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrUserNotFound),
		errors.Is(err, models.ErrPaymentNotFound),
		errors.Is(err, models.ErrTonPaymentNotFound),
		errors.Is(err, models.ErrTaskNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyCompleted):
		status = http.StatusConflict
	case errors.Is(err, models.ErrUnconfigured):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"success": false, "error": "Internal error"})
		return
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func pageParams(c *gin.Context, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(c.Query("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *HTTPServer) getMe(c *gin.Context) {
	c.JSON(http.StatusOK, s.currentUser(c))
}

// UpdateMeRequest carries the user-editable profile fields. Omitted fields
// stay untouched.
type UpdateMeRequest struct {
	DisplayName *string `json:"display_name" binding:"omitempty,max=50"`
	CustomTitle *string `json:"custom_title" binding:"omitempty,max=50"`
	CustomText  *string `json:"custom_text" binding:"omitempty,max=200"`
	CustomLink  *string `json:"custom_link" binding:"omitempty,max=500"`
}

func (s *HTTPServer) updateMe(c *gin.Context) {
	var req UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	user, err := s.core.UpdateProfile(c.Request.Context(), s.currentUser(c).TgID, models.ProfileUpdate{
		DisplayName: req.DisplayName,
		CustomTitle: req.CustomTitle,
		CustomText:  req.CustomText,
		CustomLink:  req.CustomLink,
	})
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *HTTPServer) getMyStats(c *gin.Context) {
	stats, err := s.core.UserStats(c.Request.Context(), s.currentUser(c).TgID)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// CreateInvoiceRequest asks for a payment invoice, either by explicit stars
// amount or by preset id.
type CreateInvoiceRequest struct {
	StarsAmount int `json:"stars_amount" binding:"omitempty,min=1"`
	PresetID    int `json:"preset_id" binding:"omitempty,min=1,max=3"`
}

func (s *HTTPServer) createInvoice(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	invoice, err := s.core.CreateInvoice(c.Request.Context(), s.currentUser(c).TgID, req.StarsAmount, req.PresetID)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (s *HTTPServer) paymentHistory(c *gin.Context) {
	limit, offset := pageParams(c, 20)
	payments, err := s.core.PaymentHistory(c.Request.Context(), s.currentUser(c).TgID, limit, offset)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// ActivateRequest moves charts from balance to the current week's board.
type ActivateRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

func (s *HTTPServer) activateCharts(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	activation, err := s.core.ActivateCharts(c.Request.Context(), s.currentUser(c).TgID, req.Amount)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, activation)
}

func (s *HTTPServer) tonConfig(c *gin.Context) {
	cfg, err := s.core.TonConfig(c.Request.Context())
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// CreateTonPaymentRequest asks for an on-chain payment intent.
type CreateTonPaymentRequest struct {
	AmountTon decimal.Decimal `json:"amount_ton" binding:"required"`
}

// TonPaymentResponse is an intent plus its transfer deep link.
type TonPaymentResponse struct {
	*models.TonPayment
	PaymentLink string `json:"payment_link"`
}

func (s *HTTPServer) createTonPayment(c *gin.Context) {
	var req CreateTonPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	invoice, err := s.core.CreateTonPayment(c.Request.Context(), s.currentUser(c).TgID, req.AmountTon)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, TonPaymentResponse{
		TonPayment:  invoice.Payment,
		PaymentLink: invoice.PaymentLink,
	})
}

func (s *HTTPServer) tonPaymentByComment(c *gin.Context) {
	invoice, err := s.core.TonPaymentByComment(c.Request.Context(), s.currentUser(c).TgID, c.Param("comment"))
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, TonPaymentResponse{
		TonPayment:  invoice.Payment,
		PaymentLink: invoice.PaymentLink,
	})
}

func (s *HTTPServer) tonPaymentHistory(c *gin.Context) {
	limit, _ := pageParams(c, 20)
	payments, err := s.core.TonPaymentHistory(c.Request.Context(), s.currentUser(c).TgID, limit)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (s *HTTPServer) allTimeLeaderboard(c *gin.Context) {
	limit, offset := pageParams(c, 50)
	rows, err := s.core.AllTimeLeaderboard(c.Request.Context(), limit, offset)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
}

func (s *HTTPServer) weekLeaderboard(c *gin.Context) {
	limit, offset := pageParams(c, 50)
	rows, err := s.core.WeekLeaderboard(c.Request.Context(), c.Query("week"), limit, offset)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
}

func (s *HTTPServer) referralLeaderboard(c *gin.Context) {
	limit, offset := pageParams(c, 50)
	rows, err := s.core.ReferralLeaderboard(c.Request.Context(), limit, offset)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
}

func (s *HTTPServer) totalCollected(c *gin.Context) {
	total, err := s.core.TotalCollected(c.Request.Context())
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total})
}

func (s *HTTPServer) listTasks(c *gin.Context) {
	tasks, err := s.core.ListTasks(c.Request.Context(), s.currentUser(c).TgID)
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

func (s *HTTPServer) completeTask(c *gin.Context) {
	result, err := s.core.CompleteTask(c.Request.Context(), s.currentUser(c).TgID, c.Param("id"))
	if err != nil {
		s.apiError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
