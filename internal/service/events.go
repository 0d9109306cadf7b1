package service

import (
	"time"

	"debate_room/internal/models"
)

// EventType 推送給客戶端的事件類型
type EventType string

const (
	EventConnected EventType = "connected"
	EventMessage   EventType = "message"
	EventError     EventType = "error"
	EventClosed    EventType = "closed"
)

// Event 推送給房間內所有連線的結構化事件
//
// 客戶端應以 Seq 重建訊息順序，不應依賴到達順序。
type Event struct {
	Type        EventType          `json:"type"`
	RoomID      string             `json:"room_id,omitempty"`
	Seq         int64              `json:"seq,omitempty"`
	Speaker     string             `json:"speaker,omitempty"`
	Content     string             `json:"content,omitempty"`
	MessageType models.MessageKind `json:"message_type,omitempty"`
	Topic       string             `json:"topic,omitempty"`
	NextSpeaker string             `json:"next_speaker,omitempty"`
	Round       int                `json:"round,omitempty"`
	Message     string             `json:"message,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// MessageEvent 由已寫入的訊息建立事件
func MessageEvent(msg *models.Message, nextSpeaker string, round int) Event {
	return Event{
		Type:        EventMessage,
		RoomID:      msg.RoomID,
		Seq:         msg.Seq,
		Speaker:     msg.Speaker,
		Content:     msg.Content,
		MessageType: msg.Kind,
		NextSpeaker: nextSpeaker,
		Round:       round,
		Timestamp:   msg.Timestamp,
	}
}

// ErrorEvent 只回給發送者的錯誤事件
func ErrorEvent(roomID, message string, at time.Time) Event {
	return Event{Type: EventError, RoomID: roomID, Message: message, Timestamp: at}
}

// Publisher 將事件送給房間內所有訂閱者，回傳成功送達的數量
type Publisher interface {
	Broadcast(roomID string, ev Event) int
}
