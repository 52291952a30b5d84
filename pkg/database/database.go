// Package database opens the Postgres connection and owns schema migration and seeding.
package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"billocr/models"
)

// Options controls Open.
type Options struct {
	DSN         string
	AutoMigrate bool
	// AdminPassword seeds the admin account when it does not exist. Empty skips the seed.
	AdminPassword string
}

// Open connects to Postgres and, if requested, migrates and seeds the schema.
func Open(opts Options, log zerolog.Logger) (*gorm.DB, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, errors.New("database: empty DSN")
	}
	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if opts.AutoMigrate {
		if err := Migrate(db, log); err != nil {
			return nil, err
		}
	}
	if err := Seed(db, opts.AdminPassword, log); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table. Roles go first so users can reference them.
// A failing table is logged and the rest still migrate; the first failure is returned.
func Migrate(db *gorm.DB, log zerolog.Logger) error {
	var first error
	for _, m := range []struct {
		table string
		model any
	}{
		{"roles", &models.Role{}},
		{"users", &models.User{}},
		{"refresh_tokens", &models.RefreshToken{}},
		{"bills", &models.Bill{}},
	} {
		if err := db.AutoMigrate(m.model); err != nil {
			log.Warn().Err(err).Str("table", m.table).Msg("migration failed")
			if first == nil {
				first = fmt.Errorf("migrate %s: %w", m.table, err)
			}
		}
	}
	return first
}

// Seed ensures the default roles exist and, when adminPassword is set, an admin user.
func Seed(db *gorm.DB, adminPassword string, log zerolog.Logger) error {
	for _, r := range models.DefaultRoles() {
		role := r
		if err := db.Where("name = ?", role.Name).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", r.Name, err)
		}
	}
	if adminPassword == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Where("username = ?", "admin").Count(&count).Error; err != nil {
		return fmt.Errorf("count admin: %w", err)
	}
	if count > 0 {
		return nil
	}
	if _, err := CreateUser(db, "admin", adminPassword, models.RoleAdministrator); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	log.Info().Str("username", "admin").Msg("seeded admin user")
	return nil
}

var (
	ErrUserExists    = errors.New("user already exists")
	ErrWeakPassword  = errors.New("password too short (min 6)")
	ErrEmptyUsername = errors.New("username required")
)

// CreateUser hashes password and inserts a user with roleName, creating the role if needed.
func CreateUser(db *gorm.DB, username, password, roleName string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, ErrEmptyUsername
	}
	if len(password) < 6 {
		return models.User{}, ErrWeakPassword
	}
	var existing models.User
	if err := db.Where("username = ?", username).First(&existing).Error; err == nil {
		return models.User{}, ErrUserExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}
	role := models.Role{Name: roleName}
	if err := db.Where("name = ?", roleName).FirstOrCreate(&role).Error; err != nil {
		return models.User{}, fmt.Errorf("ensure role %s: %w", roleName, err)
	}
	rid := role.ID
	user := models.User{Username: username, HashedPassword: hashed, RoleID: &rid}
	if err := db.Create(&user).Error; err != nil {
		if IsUniqueConstraintError(err) {
			return models.User{}, ErrUserExists
		}
		return models.User{}, err
	}
	user.Role = role
	return user, nil
}

// ErrUserNotFound is returned by ResetPassword for an unknown username.
var ErrUserNotFound = errors.New("user not found")

// ResetPassword replaces the stored hash of username.
func ResetPassword(db *gorm.DB, username, password string) error {
	if len(password) < 6 {
		return ErrWeakPassword
	}
	var user models.User
	if err := db.Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return db.Model(&user).Update("hashed_password", hash).Error
}

// IsUniqueConstraintError reports a duplicate-key failure from Postgres.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint")
}
