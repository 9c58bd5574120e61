// internal/core/domain/sessions/errors.go
package sessions

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound сессия отсутствует; для обработчиков это "уже решено"
	ErrNotFound = errors.New("сессия не найдена")
	// ErrInvalidTransition условное обновление не применилось (проигравший в гонке)
	ErrInvalidTransition = errors.New("недопустимый переход статуса сессии")
	// ErrActiveSessionExists у пользователя уже есть ACTIVE сессия
	ErrActiveSessionExists = errors.New("у пользователя уже есть активная сессия")
	// ErrInsufficientData выборка меньше порога аналитики; не ретраится
	ErrInsufficientData = errors.New("недостаточно данных для расчёта")
)

// TransientStoreError ошибка ввода-вывода хранилища, подлежит повтору
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("%s: временная ошибка хранилища: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// Transient оборачивает ошибку хранилища
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientStoreError{Op: op, Err: err}
}

// IsTransient true если в цепочке есть TransientStoreError
func IsTransient(err error) bool {
	var te *TransientStoreError
	return errors.As(err, &te)
}

// ValidationError некорректные входные данные или payload задачи.
// Задачи с такой ошибкой сразу уходят в dead-letter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "ошибка валидации: " + e.Reason
	}
	return fmt.Sprintf("ошибка валидации %s: %s", e.Field, e.Reason)
}

// IsValidation true если в цепочке есть ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// HTTPStatus сопоставляет ошибку домена с HTTP кодом для API слоя
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientData):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrActiveSessionExists), errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
