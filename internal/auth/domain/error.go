package domain

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrWrongAuthProvider  = errors.New("please use the correct login method")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	ErrInvalidEmail    = errors.New("invalid_email")
	ErrInvalidPassword = errors.New("invalid_password")
	ErrInvalidName     = errors.New("invalid_name")
)
