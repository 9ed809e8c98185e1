package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"go-inventory-ledger/internal/metrics"
)

// Metrics records request count and latency labelled by route pattern.
// It must wrap Logger so the status is final.
func Metrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := c.Route().Path
		if path == "" || path == "/" && c.Path() != "/" {
			path = "unmatched"
		}
		m.ObserveHTTP(c.Method(), path, c.Response().StatusCode(), time.Since(start))
		return err
	}
}
