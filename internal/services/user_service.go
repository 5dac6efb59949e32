package services

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/scribe-blog/scribe-be/internal/models"
)

// UserServiceProvider defines the interface for user services.
type UserServiceProvider interface {
	GetUserByID(id string) (models.User, error)
	CreateUser(username, email, firstName, lastName, password string) (models.User, error)
	UpdateIdentity(id, username, email, firstName, lastName string) (models.User, error)
	AuthenticateUser(email, password string) (models.User, error)
	IsUsernameTaken(username, excludeID string) (bool, error)
	IsEmailTaken(email, excludeID string) (bool, error)
}

// UserService provides business logic for user accounts.
type UserService struct {
	db *sql.DB
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db}
}

// GetUserByID retrieves a single user by their ID.
func (s *UserService) GetUserByID(id string) (models.User, error) {
	var user models.User
	row := s.db.QueryRow("SELECT id, username, email, first_name, last_name, created_at FROM users WHERE id = ?", id)
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.User{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return models.User{}, err
	}
	return user, nil
}

// GetUserByEmail retrieves a single user by their email, including the password hash.
func (s *UserService) GetUserByEmail(email string) (models.User, error) {
	var user models.User
	row := s.db.QueryRow("SELECT id, username, email, first_name, last_name, password_hash, created_at FROM users WHERE email = ?", email)
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.FirstName, &user.LastName, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return models.User{}, fmt.Errorf("user with email %s: %w", email, ErrNotFound)
		}
		return models.User{}, err
	}
	return user, nil
}

// CreateUser registers a new user, hashing their password and creating the
// companion profile row with the default avatar.
func (s *UserService) CreateUser(username, email, firstName, lastName, password string) (models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		FirstName:    firstName,
		LastName:     lastName,
		PasswordHash: string(hashedPassword),
	}

	tx, err := s.db.Begin()
	if err != nil {
		return models.User{}, err
	}
	defer tx.Rollback()

	_, err = tx.Exec("INSERT INTO users(id, username, email, first_name, last_name, password_hash) VALUES(?, ?, ?, ?, ?, ?)",
		user.ID, user.Username, user.Email, user.FirstName, user.LastName, user.PasswordHash)
	if err != nil {
		return models.User{}, err
	}

	// Every user gets a profile row pointing at the default avatar.
	_, err = tx.Exec("INSERT INTO profiles(user_id, image) VALUES(?, ?)", user.ID, models.DefaultAvatar)
	if err != nil {
		return models.User{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.User{}, err
	}

	// Return user without password hash
	user.PasswordHash = ""
	return user, nil
}

// UpdateIdentity writes the four editable scalar fields on the user row.
// Uniqueness of username and email is checked by the caller beforehand.
func (s *UserService) UpdateIdentity(id, username, email, firstName, lastName string) (models.User, error) {
	stmt, err := s.db.Prepare("UPDATE users SET username = ?, email = ?, first_name = ?, last_name = ? WHERE id = ?")
	if err != nil {
		return models.User{}, err
	}
	defer stmt.Close()

	_, err = stmt.Exec(username, email, firstName, lastName, id)
	if err != nil {
		return models.User{}, err
	}
	return s.GetUserByID(id)
}

// IsUsernameTaken reports whether another user already holds the username.
func (s *UserService) IsUsernameTaken(username, excludeID string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(1) FROM users WHERE username = ? AND id != ?", username, excludeID).Scan(&count)
	return count > 0, err
}

// IsEmailTaken reports whether another user already holds the email.
func (s *UserService) IsEmailTaken(email, excludeID string) (bool, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(1) FROM users WHERE email = ? AND id != ?", email, excludeID).Scan(&count)
	return count > 0, err
}

// AuthenticateUser verifies a user's credentials.
func (s *UserService) AuthenticateUser(email, password string) (models.User, error) {
	user, err := s.GetUserByEmail(email)
	if err != nil {
		return models.User{}, fmt.Errorf("authentication failed: user not found")
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return models.User{}, fmt.Errorf("authentication failed: invalid password")
	}

	// Don't send the password hash to the client
	user.PasswordHash = ""
	return user, nil
}
