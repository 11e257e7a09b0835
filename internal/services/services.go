// Package services содержит правила чата поверх database: проверки доступа,
// валидацию и рассылку событий через Fanout.
package services

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/pkg/protocol"
)

// Actor аутентифицированный пользователь, от имени которого идёт вызов
type Actor struct {
	ID      uuid.UUID
	IsAdmin bool
}

// Fanout доставляет события подключенным клиентам. Room и Users выполняют
// persist под блокировкой ключа и рассылают возвращённое событие, пока
// блокировка удерживается, поэтому порядок рассылки совпадает с порядком записи.
type Fanout interface {
	Room(roomID uuid.UUID, persist func() (protocol.ServerEvent, error)) error
	Users(key uuid.UUID, userIDs []uuid.UUID, persist func() (protocol.ServerEvent, error)) error
	ToUser(userID uuid.UUID, ev protocol.ServerEvent)
}

// Page курсорная пагинация: before это id сообщения, старше которого читать
type Page struct {
	Before string
	Limit  int
}

// storeErr переводит ошибки gorm в ошибки приложения
func storeErr(err error, notFound string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(notFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Conflict(notFound + ": already exists")
	default:
		var appErr *apperr.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return apperr.Internal("storage failure", err)
	}
}
