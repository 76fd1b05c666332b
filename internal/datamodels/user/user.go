package user

import (
	"context"
	"time"
)

// User 用户模型
type User struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:150;not null" json:"username"`
	Password  string    `gorm:"size:255;not null" json:"-"` // bcrypt 哈希
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

// Profile 用户资料，与 User 一对一
type Profile struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id"`
	FirstName string    `gorm:"size:30;not null" json:"first_name"`
	LastName  string    `gorm:"size:30;not null" json:"last_name"`
	Email     string    `gorm:"uniqueIndex;size:254;not null" json:"email"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

// Repository 用户仓储接口
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	// Create 在同一事务中创建用户与资料
	Create(ctx context.Context, u *User, p *Profile) error
	GetProfile(ctx context.Context, userID int64) (*Profile, error)
	SetAdmin(ctx context.Context, userID int64, isAdmin bool) error
}
