package memory

import (
	"context"

	"github.com/dropDatabas3/accesscore/internal/domain/repository"
)

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, u *repository.User, roles []repository.UserRole) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usernames[u.Username]; ok {
		return repository.Conflict(repository.ConstraintUsername)
	}
	if _, ok := s.emails[u.Email]; ok {
		return repository.Conflict(repository.ConstraintEmail)
	}
	if u.Phone != nil {
		if _, ok := s.phones[*u.Phone]; ok {
			return repository.Conflict(repository.ConstraintPhone)
		}
	}
	for _, a := range roles {
		if _, ok := s.roles[a.RoleID]; !ok {
			return repository.ErrNotFound
		}
	}

	if u.ID == "" {
		u.ID = newID()
	}
	now := s.now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt

	cp := *u
	if u.Phone != nil {
		p := *u.Phone
		cp.Phone = &p
		s.phones[p] = u.ID
	}
	s.users[u.ID] = cp
	s.usernames[u.Username] = u.ID
	s.emails[u.Email] = u.ID

	for _, a := range roles {
		a.UserID = u.ID
		if a.AssignedAt.IsZero() {
			a.AssignedAt = now
		}
		m := s.userRoles[u.ID]
		if m == nil {
			m = map[string]repository.UserRole{}
			s.userRoles[u.ID] = m
		}
		m[a.RoleID] = a
	}
	return nil
}

func (r userRepo) GetByID(_ context.Context, id string) (*repository.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r userRepo) GetByUsername(ctx context.Context, username string) (*repository.User, error) {
	r.s.mu.RLock()
	id, ok := r.s.usernames[username]
	r.s.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r userRepo) ExistsByUsername(_ context.Context, username string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.usernames[username]
	return ok, nil
}

func (r userRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.emails[email]
	return ok, nil
}
