package api

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"taskdesk/domain"
	"taskdesk/internal/fakeapi"
)

func TestAgainstFakeBackend(t *testing.T) {
	srv := httptest.NewServer(fakeapi.New(fakeapi.WithLogger(quietLogger())).Handler())
	defer srv.Close()
	ctx := context.Background()

	mgrTokens, empTokens := &memTokens{}, &memTokens{}
	mgr := New(srv.URL, mgrTokens, WithLogger(quietLogger()))
	emp := New(srv.URL, empTokens, WithLogger(quietLogger()))

	if _, err := mgr.Register(ctx, domain.RegisterRequest{Name: "Maria", Email: "maria@example.com", Password: "secret123", Role: domain.RoleManager}); err != nil {
		t.Fatalf("register manager: %v", err)
	}
	reg, err := emp.Register(ctx, domain.RegisterRequest{Name: "Eve", Email: "eve@example.com", Password: "secret123", Role: domain.RoleEmployee})
	if err != nil {
		t.Fatalf("register employee: %v", err)
	}
	if empTokens.Current() == "" {
		t.Fatal("register did not store the token")
	}

	empTokens.token = ""
	login, err := emp.Login(ctx, domain.Credentials{Email: "eve@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if login.User.ID != reg.User.ID {
		t.Fatalf("login returned %+v", login.User)
	}
	_, err = emp.Login(ctx, domain.Credentials{Email: "eve@example.com", Password: "wrong"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized for a bad password, got %v", err)
	}

	emps, err := mgr.Employees(ctx)
	if err != nil || len(emps) != 1 || emps[0].ID != reg.User.ID {
		t.Fatalf("employees: %v %v", emps, err)
	}

	created, err := mgr.CreateTask(ctx, domain.TaskFields{
		Title:            "Ship release",
		AssignedEmployee: reg.User.ID,
		DueDate:          domain.NewDate(2024, time.May, 1),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := emp.Tasks(ctx)
	if err != nil || len(tasks) != 1 || tasks[0].ID != created.ID {
		t.Fatalf("employee tasks: %v %v", tasks, err)
	}

	title := "Ship release 2"
	updated, err := mgr.UpdateTask(ctx, created.ID, domain.TaskPatch{Title: &title})
	if err != nil || updated.Title != title || updated.Status != domain.StatusPending {
		t.Fatalf("update: %+v %v", updated, err)
	}

	done, err := emp.UpdateTaskStatus(ctx, created.ID, domain.StatusCompleted)
	if err != nil || done.Status != domain.StatusCompleted || done.ID != created.ID {
		t.Fatalf("status: %+v %v", done, err)
	}

	if _, err := emp.DeleteTask(ctx, created.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("employee delete: expected forbidden, got %v", err)
	}
	conf, err := mgr.DeleteTask(ctx, created.ID)
	if err != nil || conf.Message == "" {
		t.Fatalf("delete: %+v %v", conf, err)
	}
	if _, err := mgr.Task(ctx, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	name := "Eve Adams"
	profile, err := emp.UpdateProfile(ctx, reg.User.ID, domain.ProfilePatch{Name: &name})
	if err != nil || profile.Name != name {
		t.Fatalf("update profile: %+v %v", profile, err)
	}
	me, err := emp.Profile(ctx)
	if err != nil || me.Name != name {
		t.Fatalf("profile: %+v %v", me, err)
	}
	if _, err := emp.DeleteProfile(ctx, reg.User.ID); err != nil {
		t.Fatalf("delete profile: %v", err)
	}
	if _, err := emp.Profile(ctx); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized after profile deletion, got %v", err)
	}
}
