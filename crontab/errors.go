package crontab

import "errors"

var (
	ErrFormat          = errors.New("bad format")
	ErrOutOfRange      = errors.New("value out of range")
	ErrUserRequired    = errors.New("the cron job line requires a user")
	ErrUnparseableLine = errors.New("bad crontab line")
)
