package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/safiri/core"
	identitysvc "github.com/trezcool/safiri/services/identity"
)

type accountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) identitysvc.Repository {
	return &accountRepository{db: db}
}

func (repo *accountRepository) CreateAccount(_ context.Context, acct identitysvc.Account, _ ...core.DBExecutor) (identitysvc.Account, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, a := range repo.db.accounts {
		if a.Email == acct.Email {
			return identitysvc.Account{}, identitysvc.ErrEmailTaken
		}
	}
	repo.db.accounts[acct.ID] = &acct
	return acct, nil
}

func (repo *accountRepository) GetAccount(_ context.Context, filter identitysvc.GetFilter, _ ...core.DBExecutor) (identitysvc.Account, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if acct, ok := repo.db.accounts[filter.ID]; ok {
			return *acct, nil
		}
		return identitysvc.Account{}, identitysvc.ErrAccountNotFound
	}
	for _, acct := range repo.db.accounts {
		if acct.Email == filter.Email {
			return *acct, nil
		}
	}
	return identitysvc.Account{}, identitysvc.ErrAccountNotFound
}

func (repo *accountRepository) UpdateDisplayName(_ context.Context, id, name string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acct, ok := repo.db.accounts[id]
	if !ok {
		return identitysvc.ErrAccountNotFound
	}
	acct.DisplayName = name
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *accountRepository) UpdatePassword(_ context.Context, id string, hash []byte, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acct, ok := repo.db.accounts[id]
	if !ok {
		return identitysvc.ErrAccountNotFound
	}
	acct.PasswordHash = hash
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *accountRepository) SetDisabled(_ context.Context, id string, disabled bool, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acct, ok := repo.db.accounts[id]
	if !ok {
		return identitysvc.ErrAccountNotFound
	}
	acct.IsDisabled = disabled
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

func (repo *accountRepository) SetLockout(_ context.Context, id string, attempts int, lockedUntil time.Time, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acct, ok := repo.db.accounts[id]
	if !ok {
		return identitysvc.ErrAccountNotFound
	}
	acct.FailedAttempts = attempts
	acct.LockedUntil = lockedUntil
	return nil
}

func (repo *accountRepository) SetLastLogin(_ context.Context, id string, t time.Time, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	acct, ok := repo.db.accounts[id]
	if !ok {
		return identitysvc.ErrAccountNotFound
	}
	acct.LastLogin = t
	return nil
}
