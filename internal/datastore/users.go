package datastore

import (
	"database/sql"
	"errors"

	"github.com/pulsevault/pulsevault/internal/auth"
	"github.com/pulsevault/pulsevault/pkg/models"
)

// GetUserByEmail returns the full user row, including the password hash, for
// credential verification.
func (inst *Instance) GetUserByEmail(tx dbtx, email string) (models.User, error) {
	var u models.User
	err := tx.QueryRow(
		`SELECT id, username, email, name, lastname, role, password
		 FROM Users WHERE email = ? LIMIT 1`,
		email,
	).Scan(&u.ID, &u.Username, &u.Email, &u.Name, &u.Lastname, &u.Role, &u.Password)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, errNoSuchUser(email)
		}
		return models.User{}, errInternal("failed to query user by email: %v", err)
	}
	return u, nil
}

// GetUser returns the public projection of a user by id.
func (inst *Instance) GetUser(tx dbtx, userID int64) (models.PublicUser, error) {
	var u models.PublicUser
	err := tx.QueryRow(
		`SELECT id, email, name, lastname, role FROM Users WHERE id = ? LIMIT 1`,
		userID,
	).Scan(&u.ID, &u.Email, &u.Name, &u.Lastname, &u.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.PublicUser{}, errNoSuchUser("id")
		}
		return models.PublicUser{}, errInternal("failed to query user %d: %v", userID, err)
	}
	return u, nil
}

// AddUser creates a regular-role account. The plaintext password is replaced
// with its argon2id hash before it reaches storage.
func (inst *Instance) AddUser(tx dbtx, user models.User) (models.PublicUser, error) {
	hash, err := auth.HashPassword(user.Password)
	if err != nil {
		return models.PublicUser{}, errInternal("failed to hash password: %v", err)
	}
	res, err := tx.Exec(
		`INSERT INTO Users (email, name, lastname, password, role, username)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.Email, user.Name, user.Lastname, hash, models.RoleUser, user.Username,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return models.PublicUser{}, errors.Join(ErrAlreadyExists, err)
		}
		return models.PublicUser{}, errInternal("failed to insert user: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.PublicUser{}, errInternal("failed to read created user id: %v", err)
	}
	user.ID = id
	user.Role = models.RoleUser
	return user.Public(), nil
}

// GetAllUsers lists every regular-role account.
func (inst *Instance) GetAllUsers(tx dbtx) ([]models.PublicUser, error) {
	rows, err := tx.Query(
		`SELECT id, name, lastname, email, role FROM Users WHERE role = ?`,
		models.RoleUser,
	)
	if err != nil {
		return nil, errInternal("failed to query users: %v", err)
	}
	defer rows.Close()

	users := []models.PublicUser{}
	for rows.Next() {
		var u models.PublicUser
		if err := rows.Scan(&u.ID, &u.Name, &u.Lastname, &u.Email, &u.Role); err != nil {
			return nil, errInternal("failed to scan user row: %v", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errInternal("failed to iterate users: %v", err)
	}
	return users, nil
}
