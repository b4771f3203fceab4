package common

import "errors"

// Базовые ошибки, от которых наследуются ошибки конкретных репозиториев.
var (
	ErrNotFound = errors.New("entity not found")
	ErrConflict = errors.New("entity state conflict")
)
