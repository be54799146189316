package router

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"schoolpay/internal/config"
	"schoolpay/internal/handler"
)

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	cfg *config.Config,
	authHandler *handler.AuthHandler,
	paymentHandler *handler.PaymentHandler,
	receiptHandler *handler.ReceiptHandler,
) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api")

	// Public routes
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.POST("/auth/logout", authHandler.Logout)

	// The confirmation callback and the gateway webhook authenticate by HMAC
	// signature, not by JWT.
	api.POST("/payments/verify", paymentHandler.VerifyPayment)
	api.POST("/payments/webhook", paymentHandler.HandleWebhook)

	// Secured routes (require JWT authentication)
	secured := api.Group("", echojwt.WithConfig(echojwt.Config{
		SigningKey:  []byte(cfg.JWTSecret),
		TokenLookup: "header:" + echo.HeaderAuthorization,
	}))

	// Payment routes
	secured.POST("/payments/order", paymentHandler.CreateOrder)
	secured.GET("/payments/stats", paymentHandler.GetStats)
	secured.GET("/payments/:id", paymentHandler.GetOrder)
	secured.POST("/payments/:id/refund", paymentHandler.CreateRefund)
	secured.POST("/payments/:id/cancel", paymentHandler.CancelOrder)

	// Receipt routes
	secured.GET("/receipts/:id/download", receiptHandler.Download)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
