package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ContestHub/app/models"
	"github.com/ManuelReschke/ContestHub/app/repository"
	"github.com/ManuelReschke/ContestHub/internal/pkg/apperror"
	"github.com/ManuelReschke/ContestHub/internal/pkg/usercontext"
	"github.com/ManuelReschke/ContestHub/internal/pkg/utils"
)

// UserController handles local user profiles and role assignment.
type UserController struct {
	userRepo repository.UserRepository
}

// NewUserController creates a new user controller with repository dependency
func NewUserController(userRepo repository.UserRepository) *UserController {
	return &UserController{userRepo: userRepo}
}

type registerUserRequest struct {
	Name     string `json:"name"`
	PhotoURL string `json:"photoURL"`
}

// HandleRegister creates the caller's profile on first login. The email comes
// from the verified token, never from the body.
func (uc *UserController) HandleRegister(c *fiber.Ctx) error {
	caller := usercontext.GetUserContext(c)

	var req registerUserRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid_body", "Invalid request body")
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = caller.Name
	}

	photo := strings.TrimSpace(req.PhotoURL)
	if photo == "" {
		photo = utils.GetGravatarURL(caller.Email, utils.DefaultAvatarSize)
	}

	user, err := models.NewUser(name, caller.Email, photo)
	if err != nil {
		return respondError(c, validationError(err))
	}

	inserted, stored, err := uc.userRepo.CreateIfNotExists(user)
	if err != nil {
		return respondError(c, err)
	}
	if inserted {
		log.Infof("[User] Registered %s", stored.Email)
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"inserted": true, "user": stored})
	}
	return c.JSON(fiber.Map{"inserted": false, "message": "user already exists", "user": stored})
}

// HandleMe returns the caller's profile and role.
func (uc *UserController) HandleMe(c *fiber.Ctx) error {
	user, err := uc.userRepo.GetByEmail(usercontext.GetEmail(c))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, apperror.New(apperror.KindNotFound, "user_not_found", "User not registered"))
		}
		return respondError(c, err)
	}
	return c.JSON(user)
}

// HandleAdminList lists all users.
func (uc *UserController) HandleAdminList(c *fiber.Ctx) error {
	page, limit, offset := pagination(c)
	users, err := uc.userRepo.List(offset, limit)
	if err != nil {
		return respondError(c, err)
	}
	total, err := uc.userRepo.Count()
	if err != nil {
		return respondError(c, err)
	}
	if users == nil {
		users = []models.User{}
	}
	return c.JSON(fiber.Map{
		"users": users,
		"page":  page,
		"limit": limit,
		"total": total,
	})
}

type setRoleRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

// HandleAdminSetRole changes the role of the user with the given email.
func (uc *UserController) HandleAdminSetRole(c *fiber.Ctx) error {
	var req setRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "Invalid request body")
	}
	req.Email = models.NormalizeEmail(req.Email)
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	if err := validate.Struct(&req); err != nil {
		return respondError(c, validationError(err))
	}
	if !models.IsValidRole(req.Role) {
		return badRequest(c, "invalid_role", "Role must be user, creator or admin")
	}

	user, err := uc.userRepo.UpdateRole(req.Email, req.Role)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondError(c, apperror.New(apperror.KindNotFound, "user_not_found", "User not found"))
		}
		return respondError(c, err)
	}
	log.Infof("[User] %s set role of %s to %s", usercontext.GetEmail(c), user.Email, user.Role)
	return c.JSON(user)
}
