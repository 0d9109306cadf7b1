package models

import (
	"time"
)

// RoomKind 房間類型
type RoomKind string

const (
	RoomKindDebate     RoomKind = "debate"
	RoomKindDiscussion RoomKind = "discussion"
)

// Valid 檢查房間類型是否為 debate 或 discussion
func (k RoomKind) Valid() bool {
	return k == RoomKindDebate || k == RoomKindDiscussion
}

const (
	MinParticipants = 1
	MaxParticipants = 6
)

// Room 表示一個辯論/討論房間
//
// 房間只會被停用 (IsActive=false)，不會被刪除；Topic 在建立時寫入後不再變更。
type Room struct {
	RoomID       string    `gorm:"primaryKey;column:room_id;type:varchar(32)" json:"room_id"`
	RoomType     RoomKind  `gorm:"column:room_type;type:varchar(20);not null" json:"room_type"`
	Topic        string    `gorm:"type:text;not null" json:"topic"`
	Participants []string  `gorm:"serializer:json;type:text;not null" json:"participants"`
	IsActive     bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	LastSeq      int64     `gorm:"column:last_seq;not null;default:0" json:"-"` // 最後分配的訊息序號
	CreatedAt    time.Time `json:"created_at"`
	Messages     []Message `gorm:"foreignKey:RoomID;references:RoomID" json:"-"`
}

// RoomSummary 房間列表使用的摘要
type RoomSummary struct {
	RoomID       string    `json:"room_id"`
	RoomType     RoomKind  `json:"room_type"`
	Topic        string    `json:"topic"`
	Participants []string  `json:"participants"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Summary 轉換為摘要
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		RoomID:       r.RoomID,
		RoomType:     r.RoomType,
		Topic:        r.Topic,
		Participants: r.Participants,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
	}
}
