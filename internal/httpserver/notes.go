package httpserver

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/notes/internal/apperr"
	"github.com/Skotchmaster/notes/internal/logging"
	authmw "github.com/Skotchmaster/notes/internal/middleware/auth"
	"github.com/Skotchmaster/notes/internal/models"
	"github.com/Skotchmaster/notes/internal/service"
	"github.com/Skotchmaster/notes/internal/util"
)

type NotesHTTP struct {
	Svc *service.NoteService
}

type noteRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func currentUser(c echo.Context) (*models.User, error) {
	u, ok := authmw.UserFromContext(c.Request().Context())
	if !ok {
		return nil, apperr.ErrUnauthenticated
	}
	return u, nil
}

func noteID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 0)
	if err != nil || id == 0 {
		return 0, apperr.New(apperr.KindNotFound, "note not found")
	}
	return uint(id), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (h *NotesHTTP) List(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	notes, err := h.Svc.List(c.Request().Context(), u.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, notes)
}

func (h *NotesHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "notes_create")

	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_note_error", "status", 400, "error", err)
		return errInvalidBody
	}

	note, err := h.Svc.Create(ctx, u.ID, deref(req.Title), deref(req.Content))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"message": "note added",
		"id":      note.ID,
		"note":    note,
	})
}

func (h *NotesHTTP) Get(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := noteID(c)
	if err != nil {
		return err
	}
	note, err := h.Svc.Get(c.Request().Context(), u.ID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, note)
}

func (h *NotesHTTP) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "notes_update")

	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := noteID(c)
	if err != nil {
		return err
	}
	var req noteRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_note_error", "status", 400, "error", err)
		return errInvalidBody
	}

	note, err := h.Svc.Update(ctx, u.ID, id, service.NoteInput{Title: req.Title, Content: req.Content})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "updated",
		"note":    note,
	})
}

func (h *NotesHTTP) Delete(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := noteID(c)
	if err != nil {
		return err
	}
	if err := h.Svc.Delete(c.Request().Context(), u.ID, id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "deleted"})
}

func (h *NotesHTTP) Search(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	page, size, ok := util.ParsePage(c.QueryParam("page"), c.QueryParam("size"))
	if !ok {
		return apperr.New(apperr.KindValidation, "page and size must be positive integers")
	}

	res, err := h.Svc.Search(c.Request().Context(), u.ID, c.QueryParam("q"), page, size)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"total": res.Total,
		"notes": res.Notes,
	})
}
