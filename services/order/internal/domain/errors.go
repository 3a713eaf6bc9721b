// Package domain содержит бизнес-сущности и доменные ошибки Order Service.
package domain

import "errors"

// Доменные ошибки Order Service.
// Используются для передачи бизнес-ошибок между слоями приложения.
var (
	// ErrOrderNotFound возвращается, когда заказ не найден в базе данных.
	ErrOrderNotFound = errors.New("заказ не найден")

	// ErrProductNotFound возвращается, когда Inventory Service не знает товар.
	ErrProductNotFound = errors.New("товар не найден")

	// ErrInvalidUserID возвращается при пустом или некорректном идентификаторе пользователя.
	ErrInvalidUserID = errors.New("некорректный идентификатор пользователя")

	// ErrInvalidProductID возвращается при пустом или некорректном идентификаторе товара.
	ErrInvalidProductID = errors.New("некорректный идентификатор товара")

	// ErrInvalidQuantity возвращается, когда количество товара меньше или равно нулю.
	ErrInvalidQuantity = errors.New("количество должно быть больше нуля")

	// ErrInsufficientStock возвращается, когда на складе не хватает товара.
	ErrInsufficientStock = errors.New("недостаточно товара на складе")

	// ErrExternalService возвращается при сбое или таймауте внешнего сервиса.
	ErrExternalService = errors.New("ошибка внешнего сервиса")

	// ErrRepository возвращается при сбое записи заказа в БД.
	ErrRepository = errors.New("ошибка сохранения заказа")

	// ErrInvalidTransition возвращается при недопустимом переходе состояния заказа.
	ErrInvalidTransition = errors.New("недопустимый переход состояния заказа")

	// ErrConcurrentUpdate возвращается, когда состояние заказа изменил другой процесс.
	ErrConcurrentUpdate = errors.New("заказ изменён другим процессом")

	// ErrCompensationFailed возвращается, когда компенсирующее действие не удалось.
	ErrCompensationFailed = errors.New("компенсация не выполнена")
)
