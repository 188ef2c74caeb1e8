package controllers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ContestHub/app/repository"
	"github.com/ManuelReschke/ContestHub/internal/pkg/apperror"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

var validate = validator.New()

// respondError writes the JSON error body for err. Classified errors keep
// their code; anything else is logged and reported as a 500.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *apperror.Error
	switch {
	case errors.As(err, &appErr):
		status := apperror.HTTPStatus(appErr.Kind)
		if status >= fiber.StatusInternalServerError {
			log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		}
		return c.Status(status).JSON(fiber.Map{"error": appErr.Code, "message": appErr.Message})
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Resource not found"})
	case errors.Is(err, repository.ErrDuplicate):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "duplicate", "message": "Resource already exists"})
	default:
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Internal server error"})
	}
}

func badRequest(c *fiber.Ctx, code, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": code, "message": message})
}

// parseIDParam reads a positive numeric route parameter.
func parseIDParam(c *fiber.Ctx, name string) (uint, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Params(name)), 10, 64)
	if err != nil || id == 0 {
		return 0, apperror.New(apperror.KindValidation, "invalid_id", "Invalid "+name)
	}
	return uint(id), nil
}

// pagination returns page, limit and offset from ?page=&limit=.
func pagination(c *fiber.Ctx) (int, int, int) {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit, (page - 1) * limit
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperror.Wrap(apperror.KindValidation, "validation_failed",
			"Invalid field "+fe.Field()+" ("+fe.Tag()+")", err)
	}
	return apperror.Wrap(apperror.KindValidation, "validation_failed", "Invalid request", err)
}
