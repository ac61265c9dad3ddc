package sqlstore

import "time"

// User is an account row
type User struct {
	ID           int64   `gorm:"primaryKey"`
	Username     string  `gorm:"size:64;uniqueIndex;not null"`
	PasswordHash string  `gorm:"size:128;not null"`
	Salt         string  `gorm:"size:32;not null"`
	DisplayName  string  `gorm:"size:64;not null"`
	HostLabel    string  `gorm:"size:64;not null"`
	Groups       []Group `gorm:"many2many:user_groups;"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Group is a named set of users
type Group struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"size:64;uniqueIndex;not null"`
}
