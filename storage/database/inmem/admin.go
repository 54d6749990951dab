package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/safiri/core"
	"github.com/trezcool/safiri/core/admin"
)

type adminRepository struct {
	db *DB
}

func NewAdminRepository(db *DB) admin.Repository {
	return &adminRepository{db: db}
}

func (repo *adminRepository) GetAdminByEmail(_ context.Context, email string, _ ...core.DBExecutor) (admin.Admin, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if adm, ok := repo.db.admins[email]; ok {
		return *adm, nil
	}
	return admin.Admin{}, admin.ErrNotFound
}

func (repo *adminRepository) QueryAllAdmins(_ context.Context, _ ...core.DBExecutor) ([]admin.Admin, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	admins := make([]admin.Admin, 0, len(repo.db.admins))
	for _, adm := range repo.db.admins {
		admins = append(admins, *adm)
	}
	sort.Slice(admins, func(i, j int) bool { return admins[i].Email < admins[j].Email })
	return admins, nil
}

func (repo *adminRepository) CreateAdmin(_ context.Context, adm admin.Admin, _ ...core.DBExecutor) (admin.Admin, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.admins[adm.Email] = &adm
	return adm, nil
}
