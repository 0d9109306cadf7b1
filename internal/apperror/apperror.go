// Package apperror 定義辯論室核心的錯誤分類。
//
// 每個錯誤都帶有一個 Type，HTTP 層依此決定狀態碼；
// 服務層以哨兵錯誤 (sentinel) 搭配 errors.Is 判斷具體情況。
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Type 表示錯誤的類別
type Type string

const (
	TypeValidation Type = "validation" // 輸入不合法，在邊界拒絕
	TypeNotFound   Type = "not_found"  // 房間不存在
	TypeState      Type = "state"      // 目前狀態不允許此操作
	TypeProvider   Type = "provider"   // 回饋/主題提供者失敗
	TypeTransport  Type = "transport"  // 單一連線傳送失敗
	TypeInternal   Type = "internal"
)

// Error 是帶有類別、訊息與原因的結構化錯誤
type Error struct {
	Type    Type
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus 回傳此錯誤類別對應的 HTTP 狀態碼
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeState:
		return http.StatusConflict
	case TypeProvider:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// 哨兵錯誤
var (
	ErrDuplicateRoomID      = &Error{Type: TypeInternal, Message: "duplicate room id"}
	ErrRoomNotFound         = &Error{Type: TypeNotFound, Message: "room not found"}
	ErrRoomInactive         = &Error{Type: TypeState, Message: "room is inactive"}
	ErrNotLive              = &Error{Type: TypeState, Message: "session is not live"}
	ErrUnknownSpeaker       = &Error{Type: TypeValidation, Message: "speaker is not a participant of this room"}
	ErrEmptyParticipantList = &Error{Type: TypeValidation, Message: "participant list is empty"}
	ErrProviderUnavailable  = &Error{Type: TypeProvider, Message: "provider unavailable"}
	ErrSlowConsumer         = &Error{Type: TypeTransport, Message: "connection send buffer full"}
	ErrConnectionClosed     = &Error{Type: TypeTransport, Message: "connection closed"}
)

// Validation 建立一個驗證錯誤
func Validation(message string) *Error {
	return &Error{Type: TypeValidation, Message: message}
}

// State 建立一個狀態錯誤
func State(message string) *Error {
	return &Error{Type: TypeState, Message: message}
}

// Wrap 以既有的錯誤類別包裝 cause，保留 errors.Is 對哨兵的判斷
func Wrap(sentinel *Error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// TypeOf 回傳錯誤鏈中第一個 *Error 的類別；找不到時為 TypeInternal
func TypeOf(err error) Type {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return TypeInternal
}

// HTTPStatus 回傳任意錯誤對應的 HTTP 狀態碼
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus()
	}
	return http.StatusInternalServerError
}
