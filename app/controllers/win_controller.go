package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ContestHub/app/models"
	"github.com/ManuelReschke/ContestHub/app/repository"
	"github.com/ManuelReschke/ContestHub/internal/pkg/apperror"
	"github.com/ManuelReschke/ContestHub/internal/pkg/usercontext"
)

const leaderboardLimit = 20

// WinController handles winner declaration and the leaderboard.
type WinController struct {
	contestRepo repository.ContestRepository
	taskRepo    repository.TaskRepository
	winRepo     repository.WinRepository
}

func NewWinController(contestRepo repository.ContestRepository, taskRepo repository.TaskRepository, winRepo repository.WinRepository) *WinController {
	return &WinController{
		contestRepo: contestRepo,
		taskRepo:    taskRepo,
		winRepo:     winRepo,
	}
}

type declareWinnerRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// HandleDeclareWinner records the winner of a contest. Only the creator may
// declare, the winner must have submitted a task, and a contest has one winner.
func (wc *WinController) HandleDeclareWinner(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}
	var req declareWinnerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid_body", "Invalid request body")
	}
	req.Email = models.NormalizeEmail(req.Email)
	if err := validate.Struct(&req); err != nil {
		return respondError(c, validationError(err))
	}

	contest, err := wc.contestRepo.GetByID(id)
	if err != nil {
		return respondError(c, err)
	}
	caller := usercontext.GetUserContext(c)
	if !contest.IsOwnedBy(caller.Email) {
		return respondError(c, apperror.New(apperror.KindForbidden, "forbidden", "Only the creator can declare a winner"))
	}

	task, err := wc.taskRepo.GetByContestAndUser(id, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return badRequest(c, "no_submission", "The winner has not submitted a task for this contest")
		}
		return respondError(c, err)
	}

	win := &models.Win{
		ContestID:   contest.ID,
		ContestName: contest.Name,
		WinnerEmail: task.UserEmail,
		WinnerName:  task.UserName,
		PrizeMoney:  contest.PrizeMoney,
	}
	if err := wc.winRepo.Create(win); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return respondError(c, apperror.Wrap(apperror.KindDuplicate, "winner_already_declared", "A winner was already declared for this contest", err))
		}
		return respondError(c, err)
	}

	log.Infof("[Win] %s declared %s winner of contest %d", caller.Email, win.WinnerEmail, contest.ID)
	return c.Status(fiber.StatusCreated).JSON(win)
}

// HandleMine lists the caller's wins.
func (wc *WinController) HandleMine(c *fiber.Ctx) error {
	wins, err := wc.winRepo.ListByWinner(usercontext.GetEmail(c))
	if err != nil {
		return respondError(c, err)
	}
	if wins == nil {
		wins = []models.Win{}
	}
	return c.JSON(wins)
}

// HandleLeaderboard aggregates wins per user.
func (wc *WinController) HandleLeaderboard(c *fiber.Ctx) error {
	rows, err := wc.winRepo.Leaderboard(leaderboardLimit)
	if err != nil {
		return respondError(c, err)
	}
	if rows == nil {
		rows = []repository.LeaderboardRow{}
	}
	return c.JSON(rows)
}
