package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Freeeeeet/mentor_queue/internal/apperr"
	"github.com/Freeeeeet/mentor_queue/internal/model"
	"github.com/Freeeeeet/mentor_queue/internal/service"
	"github.com/labstack/echo/v4"
)

type expandRequest struct {
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	TeacherID       int64  `json:"teacher_id" validate:"required,gt=0"`
	AMStart         string `json:"am_start"`
	AMEnd           string `json:"am_end"`
	PMStart         string `json:"pm_start"`
	PMEnd           string `json:"pm_end"`
	IntervalMinutes int    `json:"interval_minutes" validate:"gte=0"`
	Session         string `json:"session" validate:"omitempty,oneof=AM PM BOTH"`
}

type breakRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeLabel string `json:"time_label" validate:"required,datetime=15:04"`
	TeacherID int64  `json:"teacher_id" validate:"required,gt=0"`
	IsBreak   *bool  `json:"is_break" validate:"required"`
}

type bookRequest struct {
	SlotID int64 `json:"slot_id" validate:"required,gt=0"`
}

type cancelRequest struct {
	Refund bool `json:"refund"`
}

type grantRequest struct {
	StudentID int64  `json:"student_id" validate:"required,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"max=500"`
}

type bulkGrantRequest struct {
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Reason   string `json:"reason" validate:"max=500"`
}

type problemRequest struct {
	Title              string     `json:"title" validate:"max=200"`
	Content            string     `json:"content"`
	ScheduledPublishAt *time.Time `json:"scheduled_publish_at"`
	PreviewLeadHours   *int       `json:"preview_lead_hours" validate:"omitempty,gte=0"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required,oneof=draft published archived"`
}

type assignRequest struct {
	ReservationID int64 `json:"reservation_id" validate:"required,gt=0"`
	ProblemID     int64 `json:"problem_id" validate:"required,gt=0"`
}

type sessionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=scheduled active feedback_pending completed cancelled"`
}

type ticketsResponse struct {
	StudentID int64                `json:"student_id"`
	Balance   int                  `json:"balance"`
	Grants    []*model.TicketGrant `json:"grants"`
}

// bind разбирает тело и проверяет теги validate
func bind(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apperr.Validation("bind request", "malformed body")
	}
	return c.Validate(req)
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("parse path", "invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

func parseDate(value string) (time.Time, error) {
	date, err := time.Parse(model.DateLayout, value)
	if err != nil {
		return time.Time{}, apperr.Validation("parse date", "date must look like %s, got %q", model.DateLayout, value)
	}
	return date, nil
}

func (s *Server) me(c echo.Context) error {
	user, err := s.services.Users.GetByID(c.Request().Context(), callerFrom(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

func (s *Server) expandSlots(c echo.Context) error {
	var req expandRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return err
	}

	res, err := s.services.Slots.Expand(c.Request().Context(), callerFrom(c), service.ExpandRequest{
		Date:            date,
		TeacherID:       req.TeacherID,
		AMStart:         req.AMStart,
		AMEnd:           req.AMEnd,
		PMStart:         req.PMStart,
		PMEnd:           req.PMEnd,
		IntervalMinutes: req.IntervalMinutes,
		Session:         service.SessionFilter(req.Session),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) setBreak(c echo.Context) error {
	var req breakRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	date, err := parseDate(req.Date)
	if err != nil {
		return err
	}

	slot, err := s.services.Slots.SetBreak(c.Request().Context(), callerFrom(c), date, req.TimeLabel, req.TeacherID, *req.IsBreak)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slot)
}

func (s *Server) listSlots(c echo.Context) error {
	teacherID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	date, err := parseDate(c.QueryParam("date"))
	if err != nil {
		return err
	}

	slots, err := s.services.Slots.ListSlots(c.Request().Context(), callerFrom(c), teacherID, date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, slots)
}

func (s *Server) book(c echo.Context) error {
	var req bookRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	reservation, err := s.services.Reservations.Book(c.Request().Context(), callerFrom(c), req.SlotID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, reservation)
}

func (s *Server) cancelReservation(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req cancelRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	reservation, err := s.services.Reservations.Cancel(c.Request().Context(), callerFrom(c), id, service.CancelOptions{Refund: req.Refund})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reservation)
}

func (s *Server) visibility(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	view, err := s.services.Reservations.Visibility(c.Request().Context(), callerFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) listReservations(c echo.Context) error {
	studentID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	reservations, err := s.services.Reservations.ListMine(c.Request().Context(), callerFrom(c), studentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, reservations)
}

func (s *Server) grantIndividual(c echo.Context) error {
	var req grantRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	balance, err := s.services.Tickets.GrantIndividual(c.Request().Context(), callerFrom(c), req.StudentID, req.Quantity, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{"student_id": req.StudentID, "balance": balance})
}

func (s *Server) grantBulk(c echo.Context) error {
	var req bulkGrantRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	res, err := s.services.Tickets.GrantBulk(c.Request().Context(), callerFrom(c), req.Quantity, req.Reason)
	if errors.Is(err, apperr.ErrPartialFailure) && res != nil {
		// клиенту нужен разбор по студентам, а не только текст ошибки
		status, code := statusOf(err)
		return c.JSON(status, echo.Map{"error": code, "message": err.Error(), "result": res})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, res)
}

func (s *Server) tickets(c echo.Context) error {
	studentID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	caller := callerFrom(c)

	balance, err := s.services.Tickets.Balance(ctx, caller, studentID)
	if err != nil {
		return err
	}
	grants, err := s.services.Tickets.Grants(ctx, caller, studentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ticketsResponse{StudentID: studentID, Balance: balance, Grants: grants})
}

func (s *Server) createProblem(c echo.Context) error {
	var req problemRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	problem, err := s.services.Problems.CreateProblem(c.Request().Context(), callerFrom(c), service.CreateProblemInput{
		Title:              req.Title,
		Content:            req.Content,
		ScheduledPublishAt: req.ScheduledPublishAt,
		PreviewLeadHours:   req.PreviewLeadHours,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, problem)
}

func (s *Server) getProblem(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	problem, err := s.services.Problems.GetProblem(c.Request().Context(), callerFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, problem)
}

func (s *Server) problemHistory(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}

	entries, err := s.services.Problems.History(c.Request().Context(), callerFrom(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}

func (s *Server) transitionProblem(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req transitionRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	problem, err := s.services.Problems.Transition(c.Request().Context(), callerFrom(c), id, model.ProblemStatus(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, problem)
}

func (s *Server) runPublish(c echo.Context) error {
	res, err := s.services.Publish.Run(c.Request().Context(), callerFrom(c), service.TriggerManual)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) assignProblem(c echo.Context) error {
	var req assignRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	session, err := s.services.Problems.AssignProblem(c.Request().Context(), callerFrom(c), req.ReservationID, req.ProblemID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, session)
}

func (s *Server) setSessionStatus(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req sessionStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	session, err := s.services.Problems.SetSessionStatus(c.Request().Context(), callerFrom(c), id, model.SessionStatus(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}
