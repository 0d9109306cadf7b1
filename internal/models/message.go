package models

import (
	"time"
)

// MessageKind 訊息來源類型
type MessageKind string

const (
	MessageKindUser  MessageKind = "user"  // 參與者發言
	MessageKindAgent MessageKind = "agent" // 回饋代理產生的內容
)

// Message 房間訊息紀錄，寫入後不可變更
//
// Seq 在同一房間內從 1 開始連續遞增，由儲存層在寫入時分配。
type Message struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	RoomID    string      `gorm:"column:room_id;type:varchar(32);not null;index:idx_messages_room_id;uniqueIndex:idx_messages_room_seq,priority:1" json:"room_id"`
	Seq       int64       `gorm:"not null;uniqueIndex:idx_messages_room_seq,priority:2" json:"seq"`
	Speaker   string      `gorm:"type:varchar(100);not null" json:"speaker"`
	Content   string      `gorm:"type:text;not null" json:"content"`
	Kind      MessageKind `gorm:"column:message_type;type:varchar(20);not null;default:user" json:"message_type"`
	Timestamp time.Time   `gorm:"not null" json:"timestamp"`
}
