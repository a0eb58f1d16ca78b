// Package middleware provides HTTP middleware for the API
package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v3"

	"sms-backend/app/dto"
)

// CustomerContext resolves the acting customer from the X-Customer-ID header
// and stores it in request locals. The API sits behind the platform's
// authenticating proxy, which injects the header after token validation.
func CustomerContext() fiber.Handler {
	return func(c fiber.Ctx) error {
		raw := c.Get("X-Customer-ID")
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Customer identification is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_CUSTOMER_ID",
				},
			})
		}

		customerID, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || customerID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid customer identification",
				Error: dto.ErrorDetail{
					Code: "INVALID_CUSTOMER_ID",
				},
			})
		}

		c.Locals("customer_id", uint(customerID))
		return c.Next()
	}
}
