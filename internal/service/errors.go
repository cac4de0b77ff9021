package service

import "errors"

var (
	ErrBadCredentials  = errors.New("bad credentials")
	ErrUnknownIdentity = errors.New("unknown identity")
	ErrUnconfirmed     = errors.New("email not confirmed")
	ErrInactive        = errors.New("account is banned")
	ErrRevokedToken    = errors.New("refresh token revoked")

	ErrValidation       = errors.New("validation error")
	ErrAlreadyExists    = errors.New("user already exists")
	ErrAlreadyConfirmed = errors.New("email already confirmed")
	ErrForbiddenTarget  = errors.New("operation not allowed on this user")
)
