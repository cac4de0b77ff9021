package repo

import (
	"context"

	"github.com/Skotchmaster/imageiq/internal/models"
)

func (r *GormRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *GormRepo) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (r *GormRepo) CreateUserIfNotExists(ctx context.Context, u *models.User) error {
	tx := r.DB.WithContext(ctx).Where("email = ?", u.Email).FirstOrCreate(u)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrUserAlreadyExist
	}
	return nil
}

func (r *GormRepo) ConfirmEmail(ctx context.Context, email string) error {
	return r.update(ctx, "email = ?", email, map[string]any{"confirmed": true})
}

func (r *GormRepo) SetActive(ctx context.Context, id uint, active bool) error {
	return r.update(ctx, "id = ?", id, map[string]any{"active": active})
}

func (r *GormRepo) SetRole(ctx context.Context, id uint, role string) error {
	return r.update(ctx, "id = ?", id, map[string]any{"role": role})
}

func (r *GormRepo) SetPassword(ctx context.Context, id uint, digest string) error {
	return r.update(ctx, "id = ?", id, map[string]any{"password_hash": digest})
}

func (r *GormRepo) List(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []models.User
	if err := r.DB.WithContext(ctx).Order("id").Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *GormRepo) update(ctx context.Context, where string, arg any, fields map[string]any) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where(where, arg).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
