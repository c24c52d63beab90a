package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/ecomcore/shop/internal/handlers"
	"github.com/ecomcore/shop/internal/service/token"
)

type Deps struct {
	DB             *gorm.DB
	AuthHandler    *handlers.AuthHandler
	ProductHandler *handlers.ProductHandler
	CartHandler    *handlers.CartHandler
	OrderHandler   *handlers.OrderHandler
	SearchHandler  *handlers.SearchHandler
	TokenService   *token.TokenService
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(200) })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")

	v1.POST("/register", d.AuthHandler.Register)
	v1.POST("/login", d.AuthHandler.Login)
	v1.POST("/logout", d.AuthHandler.LogOut)
	v1.GET("/search", d.SearchHandler.Search)

	products := v1.Group("/products")
	products.GET("", d.ProductHandler.GetProducts)
	products.GET("/:id", d.ProductHandler.GetProduct)

	admin := v1.Group("/admin", d.TokenService.AutoRefreshMiddlewareAdmin)
	admin.POST("/products", d.ProductHandler.CreateProduct)
	admin.PATCH("/products/:id", d.ProductHandler.PatchProduct)
	admin.PATCH("/products/:id/stock", d.ProductHandler.UpdateStock)
	admin.DELETE("/products/:id", d.ProductHandler.DeleteProduct)
	admin.PATCH("/orders/:id/status", d.OrderHandler.UpdateStatus)

	authed := v1.Group("", d.TokenService.AutoRefreshMiddleware)
	authed.GET("/me", d.AuthHandler.Me)

	authed.GET("/cart", d.CartHandler.GetCart)
	authed.POST("/cart", d.CartHandler.AddToCart)
	authed.PUT("/cart/items/:product_id", d.CartHandler.UpdateItem)
	authed.DELETE("/cart/items/:product_id", d.CartHandler.RemoveItem)
	authed.DELETE("/cart", d.CartHandler.ClearCart)

	authed.POST("/orders", d.OrderHandler.PlaceOrder)
	authed.GET("/orders", d.OrderHandler.ListOrders)
	authed.GET("/orders/:id", d.OrderHandler.GetOrder)
	authed.DELETE("/orders/:id", d.OrderHandler.CancelOrder)
}
