package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// createOrderRequest принимает обе формы тела: исторические параллельные
// массивы ids/quantities и items с явными позициями.
type createOrderRequest struct {
	IDs        []string          `json:"ids"`
	Quantities []int64           `json:"quantities"`
	Items      []createOrderItem `json:"items"`
	Currency   string            `json:"currency"`
}

type createOrderItem struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

func (r createOrderRequest) lines() ([]domain.OrderLine, error) {
	if len(r.Items) > 0 {
		lines := make([]domain.OrderLine, 0, len(r.Items))
		for _, item := range r.Items {
			lines = append(lines, domain.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
		}
		return lines, nil
	}
	if len(r.IDs) == 0 {
		return nil, domain.ErrProductsRequired
	}
	if len(r.IDs) != len(r.Quantities) {
		return nil, errors.New("ids and quantities length mismatch")
	}
	lines := make([]domain.OrderLine, 0, len(r.IDs))
	for i, id := range r.IDs {
		lines = append(lines, domain.OrderLine{ProductID: id, Quantity: r.Quantities[i]})
	}
	return lines, nil
}

type orderResponse struct {
	OrderID            string              `json:"orderId"`
	UserID             string              `json:"userId"`
	Status             string              `json:"status"`
	SaleChannel        string              `json:"saleChannel"`
	TotalPrice         int64               `json:"totalPrice"`
	Currency           string              `json:"currency"`
	Products           []orderLineResponse `json:"products"`
	CancellationReason string              `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

type orderLineResponse struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

func toOrderResponse(order domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(order.Products))
	for _, line := range order.Products {
		lines = append(lines, orderLineResponse{
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPriceMinor,
		})
	}
	return orderResponse{
		OrderID:            order.ID,
		UserID:             order.UserID,
		Status:             string(order.Status),
		SaleChannel:        string(order.SaleChannel),
		TotalPrice:         order.TotalPriceMinor,
		Currency:           order.Currency,
		Products:           lines,
		CancellationReason: order.CancellationReason,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}

func userID(c *gin.Context) (string, bool) {
	id := c.GetHeader("X-User-ID")
	return id, id != ""
}

func (s *Server) createOrder(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	lines, err := req.lines()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	currency := req.Currency
	if currency == "" {
		currency = "RUB"
	}

	order, err := s.orders.CreateOrder(c.Request.Context(), uid, currency, lines)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, domain.ErrLineQuantityInvalid),
			errors.Is(err, domain.ErrProductsRequired),
			errors.Is(err, domain.ErrLinePriceInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			s.logger.WithError(err).Error("failed to create order")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"orderId":    order.ID,
		"status":     string(order.Status),
		"totalPrice": order.TotalPriceMinor,
	})
}

func (s *Server) getOrder(c *gin.Context) {
	order, err := s.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		s.logger.WithError(err).Error("failed to load order")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(order))
}

type timelineEventResponse struct {
	Type       string    `json:"type"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (s *Server) getOrderTimeline(c *gin.Context) {
	orderID := c.Param("id")
	if _, err := s.orders.GetOrder(c.Request.Context(), orderID); err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		s.logger.WithError(err).Error("failed to load order")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	timeline, err := s.orders.Timeline(c.Request.Context(), orderID)
	if err != nil {
		s.logger.WithError(err).Error("failed to load order timeline")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := make([]timelineEventResponse, 0, len(timeline))
	for _, event := range timeline {
		resp = append(resp, timelineEventResponse{
			Type:       event.Type,
			Reason:     event.Reason,
			OccurredAt: event.Occurred,
		})
	}
	c.JSON(http.StatusOK, gin.H{"orderId": orderID, "events": resp})
}

type seckillBuyRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

func (s *Server) seckillBuy(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
		return
	}

	var req seckillBuyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId is required"})
		return
	}

	outcome, correlationID, err := s.seckill.Buy(c.Request.Context(), req.ProductID, uid)
	if err != nil {
		s.logger.WithError(err).Error("seckill buy failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	switch outcome {
	case domain.SeckillReserved:
		c.JSON(http.StatusAccepted, gin.H{
			"status":        "RESERVED",
			"correlationId": correlationID,
		})
	case domain.SeckillCampaignNotStarted:
		c.JSON(http.StatusBadRequest, gin.H{"status": outcome.String()})
	case domain.SeckillOutOfStock, domain.SeckillAlreadyPurchased:
		c.JSON(http.StatusConflict, gin.H{"status": outcome.String()})
	case domain.SeckillRateLimited:
		c.JSON(http.StatusTooManyRequests, gin.H{"status": outcome.String()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "unknown outcome"})
	}
}

func (s *Server) seckillStatus(c *gin.Context) {
	campaign, err := s.seckill.CampaignStatus(c.Request.Context(), c.Param("productId"))
	if err != nil {
		if errors.Is(err, domain.ErrCampaignNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}
		s.logger.WithError(err).Error("failed to load campaign status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"productId":      campaign.ProductID,
		"stockRemaining": campaign.StockRemaining,
		"totalStock":     campaign.TotalStock,
		"price":          campaign.PriceMinor,
		"currency":       campaign.Currency,
		"isActive":       campaign.Active(time.Now().UTC()),
		"startTime":      campaign.StartTime,
		"endTime":        campaign.EndTime,
	})
}

type seckillInitRequest struct {
	ProductID  string     `json:"productId" binding:"required"`
	TotalStock int64      `json:"totalStock"`
	Price      int64      `json:"price"`
	Currency   string     `json:"currency"`
	StartTime  *time.Time `json:"startTime"`
	EndTime    *time.Time `json:"endTime"`
}

func (s *Server) seckillInit(c *gin.Context) {
	var req seckillInitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.TotalStock < 0 || req.Price < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totalStock and price must be non-negative"})
		return
	}

	campaign := domain.Campaign{
		ProductID:  req.ProductID,
		TotalStock: req.TotalStock,
		PriceMinor: req.Price,
		Currency:   req.Currency,
	}
	if req.StartTime != nil {
		campaign.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		campaign.EndTime = req.EndTime.UTC()
	}

	if err := s.seckill.InitCampaign(c.Request.Context(), campaign); err != nil {
		s.logger.WithError(err).Error("failed to init seckill campaign")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"productId": req.ProductID, "totalStock": req.TotalStock})
}

// retryableMessageResponse — запись outbox, исчерпавшая retry. Отдаётся
// оператору для разбора и ручной перепубликации.
type retryableMessageResponse struct {
	ID         string    `json:"id"`
	EventID    string    `json:"eventId"`
	EventType  string    `json:"eventType"`
	RoutingKey string    `json:"routingKey"`
	RetryCount int       `json:"retryCount"`
	LastError  string    `json:"lastError,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (s *Server) outboxRetryables(c *gin.Context) {
	if s.outbox == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "outbox is not configured"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	messages, err := s.outbox.Retryables(c.Request.Context(), limit)
	if err != nil {
		s.logger.WithError(err).Error("failed to list outbox retryables")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := make([]retryableMessageResponse, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, retryableMessageResponse{
			ID:         msg.ID,
			EventID:    msg.EventID,
			EventType:  msg.EventType,
			RoutingKey: msg.RoutingKey,
			RetryCount: msg.RetryCount,
			LastError:  msg.LastError,
			CreatedAt:  msg.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"count": len(resp), "messages": resp})
}

type seckillReleaseRequest struct {
	ProductID string `json:"productId" binding:"required"`
	UserID    string `json:"userId" binding:"required"`
}

func (s *Server) seckillRelease(c *gin.Context) {
	var req seckillReleaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "productId and userId are required"})
		return
	}

	released, err := s.seckill.Release(c.Request.Context(), req.ProductID, req.UserID)
	if err != nil {
		s.logger.WithError(err).Error("failed to release seckill slot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": released})
}
