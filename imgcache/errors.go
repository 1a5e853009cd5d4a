package imgcache

import "errors"

var (
	ErrUninitialized      = errors.New("image cache is not initialised")
	ErrInitializationRace = errors.New("image cache is already initialised")
	ErrEmptyCache         = errors.New("image cache is empty")
	ErrDecode             = errors.New("cannot decode image")
	ErrStorage            = errors.New("image storage error")
)
