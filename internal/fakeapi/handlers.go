package fakeapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"taskdesk/domain"
)

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

type employeesResponse struct {
	Employees []domain.Employee `json:"employees"`
}

type taskResponse struct {
	Task domain.Task `json:"task"`
}

type statusRequest struct {
	Status domain.Status `json:"status" validate:"required,oneof=pending in-progress completed"`
}

func bindValid(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}

func register(st *state, secret []byte) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.RegisterRequest
		if err := bindValid(c, &req); err != nil {
			return err
		}
		u, err := st.createAccount(req)
		if err != nil {
			return err
		}
		tok, err := issueToken(secret, u)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusCreated, domain.AuthResponse{Token: tok, User: u})
	}
}

func login(st *state, secret []byte) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req domain.Credentials
		if err := bindValid(c, &req); err != nil {
			return err
		}
		u, err := st.authenticate(req.Email, req.Password)
		if err != nil {
			return err
		}
		tok, err := issueToken(secret, u)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, domain.AuthResponse{Token: tok, User: u})
	}
}

func getProfile(_ *state) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, currentUser(c))
	}
}

func updateProfile(st *state) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if id != currentUser(c).ID {
			return errForbidden
		}
		var patch domain.ProfilePatch
		if err := bindValid(c, &patch); err != nil {
			return err
		}
		u, err := st.updateAccount(id, patch)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, u)
	}
}

func deleteProfile(st *state) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Param("id")
		if id != currentUser(c).ID {
			return errForbidden
		}
		if err := st.deleteAccount(id); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "Profile deleted"})
	}
}

func getEmployees(st *state) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, employeesResponse{Employees: st.employees()})
	}
}

func createTask(st *state, h *hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		u := currentUser(c)
		if u.Role != domain.RoleManager {
			return errForbidden
		}
		var req domain.TaskFields
		if err := bindValid(c, &req); err != nil {
			return err
		}
		t, err := st.createTask(u, req)
		if err != nil {
			return err
		}
		h.publishLogged(c.Request().Context(), t.AssignedEmployee.ID, domain.EventTaskAssigned, domain.TaskAssigned{Task: t})
		return c.JSON(http.StatusCreated, t)
	}
}

func getTasks(st *state) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, tasksResponse{Tasks: st.tasksFor(currentUser(c))})
	}
}

func getTask(st *state) echo.HandlerFunc {
	return func(c echo.Context) error {
		t, err := st.task(currentUser(c), c.Param("id"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, t)
	}
}

func updateTask(st *state, h *hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		var patch domain.TaskPatch
		if err := c.Bind(&patch); err != nil {
			return err
		}
		if patch.Status != nil && !patch.Status.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "status must be one of: pending in-progress completed")
		}
		t, previous, err := st.updateTask(currentUser(c), c.Param("id"), patch)
		if err != nil {
			return err
		}
		ctx := c.Request().Context()
		if t.AssignedEmployee != nil && t.AssignedEmployee.ID != previous {
			h.publishLogged(ctx, t.AssignedEmployee.ID, domain.EventTaskAssigned, domain.TaskAssigned{Task: t})
		} else if previous != "" {
			h.publishLogged(ctx, previous, domain.EventTaskUpdated, domain.TaskUpdated{
				TaskID:  t.ID,
				Title:   t.Title,
				Updates: patch,
			})
		}
		return c.JSON(http.StatusOK, t)
	}
}

func deleteTask(st *state) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := st.deleteTask(currentUser(c), c.Param("id")); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, messageResponse{Message: "Task deleted"})
	}
}

func updateTaskStatus(st *state, h *hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req statusRequest
		if err := bindValid(c, &req); err != nil {
			return err
		}
		u := currentUser(c)
		t, err := st.setStatus(u, c.Param("id"), req.Status)
		if err != nil {
			return err
		}
		ctx := c.Request().Context()
		if assignee := t.AssignedEmployee; assignee != nil && assignee.ID != u.ID {
			h.publishLogged(ctx, assignee.ID, domain.EventTaskUpdated, domain.TaskUpdated{
				TaskID:  t.ID,
				Title:   t.Title,
				Updates: domain.StatusPatch(t.Status),
			})
		}
		if t.Status == domain.StatusCompleted {
			h.publishLogged(ctx, t.AssignedBy, domain.EventTaskCompleted, domain.TaskCompleted{TaskID: t.ID, Title: t.Title})
		}
		return c.JSON(http.StatusOK, taskResponse{Task: t})
	}
}
