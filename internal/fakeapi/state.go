package fakeapi

import (
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskdesk/domain"
)

type account struct {
	user domain.User
	hash []byte
}

// state is the backend's data, guarded by a single mutex.
type state struct {
	mu       sync.Mutex
	accounts map[string]*account
	byEmail  map[string]string
	order    []string
	tasks    []domain.Task
}

func newState() *state {
	return &state{
		accounts: make(map[string]*account),
		byEmail:  make(map[string]string),
	}
}

func (s *state) createAccount(in domain.RegisterRequest) (domain.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.MinCost)
	if err != nil {
		return domain.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[in.Email]; taken {
		return domain.User{}, errUserExists
	}
	u := domain.User{ID: uuid.NewString(), Name: in.Name, Email: in.Email, Role: in.Role}
	s.accounts[u.ID] = &account{user: u, hash: hash}
	s.byEmail[u.Email] = u.ID
	s.order = append(s.order, u.ID)
	return u, nil
}

func (s *state) authenticate(email, password string) (domain.User, error) {
	s.mu.Lock()
	id, ok := s.byEmail[email]
	var acc account
	if ok {
		acc = *s.accounts[id]
	}
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acc.hash, []byte(password)) != nil {
		return domain.User{}, errInvalidCredentials
	}
	return acc.user, nil
}

func (s *state) account(id string) (account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return account{}, false
	}
	return *acc, true
}

func (s *state) updateAccount(id string, patch domain.ProfilePatch) (domain.User, error) {
	var hash []byte
	if patch.Password != nil {
		var err error
		if hash, err = bcrypt.GenerateFromPassword([]byte(*patch.Password), bcrypt.MinCost); err != nil {
			return domain.User{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return domain.User{}, errUserNotFound
	}
	if patch.Email != nil && *patch.Email != acc.user.Email {
		if _, taken := s.byEmail[*patch.Email]; taken {
			return domain.User{}, errUserExists
		}
		delete(s.byEmail, acc.user.Email)
		acc.user.Email = *patch.Email
		s.byEmail[acc.user.Email] = id
	}
	if patch.Name != nil {
		acc.user.Name = *patch.Name
		for i := range s.tasks {
			if ref := s.tasks[i].AssignedEmployee; ref != nil && ref.ID == id {
				ref.Name = acc.user.Name
			}
		}
	}
	if hash != nil {
		acc.hash = hash
	}
	return acc.user, nil
}

func (s *state) deleteAccount(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return errUserNotFound
	}
	delete(s.accounts, id)
	delete(s.byEmail, acc.user.Email)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *state) employees() []domain.Employee {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Employee, 0, len(s.order))
	for _, id := range s.order {
		u := s.accounts[id].user
		if u.Role == domain.RoleEmployee {
			out = append(out, domain.Employee{ID: u.ID, Name: u.Name})
		}
	}
	return out
}

// employeeRefLocked resolves an assignee id; the caller holds s.mu.
func (s *state) employeeRefLocked(id string) (*domain.EmployeeRef, error) {
	acc, ok := s.accounts[id]
	if !ok || acc.user.Role != domain.RoleEmployee {
		return nil, errBadAssignee
	}
	return &domain.EmployeeRef{ID: id, Name: acc.user.Name}, nil
}

func (s *state) createTask(manager domain.User, in domain.TaskFields) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, err := s.employeeRefLocked(in.AssignedEmployee)
	if err != nil {
		return domain.Task{}, err
	}
	status := in.Status
	if status == "" {
		status = domain.StatusPending
	}
	t := domain.Task{
		ID:               uuid.NewString(),
		Title:            in.Title,
		Description:      in.Description,
		Status:           status,
		AssignedEmployee: ref,
		DueDate:          in.DueDate,
		AssignedBy:       manager.ID,
	}
	s.tasks = append(s.tasks, t)
	return t.Clone(), nil
}

func visibleTo(u domain.User, t domain.Task) bool {
	if u.Role == domain.RoleManager {
		return t.AssignedBy == u.ID
	}
	return t.AssignedEmployee != nil && t.AssignedEmployee.ID == u.ID
}

func (s *state) tasksFor(u domain.User) []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Task, 0)
	for _, t := range s.tasks {
		if visibleTo(u, t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

func (s *state) indexLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *state) task(u domain.User, id string) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 || !visibleTo(u, s.tasks[i]) {
		return domain.Task{}, errTaskNotFound
	}
	return s.tasks[i].Clone(), nil
}

// updateTask applies patch to a task owned by manager. It returns the task
// and the id of the employee it was assigned to before the change.
func (s *state) updateTask(manager domain.User, id string, patch domain.TaskPatch) (domain.Task, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return domain.Task{}, "", errTaskNotFound
	}
	t := &s.tasks[i]
	if t.AssignedBy != manager.ID {
		return domain.Task{}, "", errForbidden
	}
	previous := ""
	if t.AssignedEmployee != nil {
		previous = t.AssignedEmployee.ID
	}
	if patch.AssignedEmployee != nil {
		ref, err := s.employeeRefLocked(patch.AssignedEmployee.ID)
		if err != nil {
			return domain.Task{}, "", err
		}
		patch.AssignedEmployee = ref
	}
	patch.AssignedBy = nil
	patch.ApplyTo(t)
	return t.Clone(), previous, nil
}

func (s *state) setStatus(u domain.User, id string, status domain.Status) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return domain.Task{}, errTaskNotFound
	}
	t := &s.tasks[i]
	if !visibleTo(u, *t) {
		return domain.Task{}, errForbidden
	}
	t.Status = status
	return t.Clone(), nil
}

func (s *state) deleteTask(manager domain.User, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return errTaskNotFound
	}
	if s.tasks[i].AssignedBy != manager.ID {
		return errForbidden
	}
	s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
	return nil
}
