package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"debate_room/internal/apperror"
	"debate_room/internal/models"
)

// AppendMessage 寫入一則訊息並分配下一個序號
//
// 停用的房間拒絕 user 訊息，但仍接受 agent 訊息，讓停用前已排程的回饋可以寫入。
func (s *roomStore) AppendMessage(ctx context.Context, roomID, speaker, content string, kind models.MessageKind) (*models.Message, error) {
	var msg *models.Message

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		// postgres 鎖住房間列；sqlite 本身只有單一寫入者
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("room_id = ?", roomID).
			First(&room).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrRoomNotFound
		}
		if err != nil {
			return err
		}
		if !room.IsActive && kind == models.MessageKindUser {
			return apperror.ErrRoomInactive
		}

		seq := room.LastSeq + 1
		if err := tx.Model(&models.Room{}).Where("room_id = ?", roomID).Update("last_seq", seq).Error; err != nil {
			return err
		}

		msg = &models.Message{
			RoomID:    roomID,
			Seq:       seq,
			Speaker:   speaker,
			Content:   content,
			Kind:      kind,
			Timestamp: s.clock.Now(),
		}
		return tx.Create(msg).Error
	})
	if err != nil {
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("append message to room %s: %w", roomID, err)
	}

	s.logger.Debug("message appended", "room_id", roomID, "seq", msg.Seq, "kind", kind)
	return msg, nil
}

// ListMessages 回傳最近 limit 則訊息 (依時間先後)；limit <= 0 回傳全部
func (s *roomStore) ListMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	var messages []models.Message
	db := s.db.WithContext(ctx).Where("room_id = ?", roomID)

	if limit <= 0 {
		if err := db.Order("seq ASC").Find(&messages).Error; err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		return messages, nil
	}

	if err := db.Order("seq DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return lo.Reverse(messages), nil
}

// ListMessagesAfter 回傳序號大於 afterSeq 的訊息，供重新連線時補發
func (s *roomStore) ListMessagesAfter(ctx context.Context, roomID string, afterSeq int64, limit int) ([]models.Message, error) {
	var messages []models.Message
	db := s.db.WithContext(ctx).Where("room_id = ? AND seq > ?", roomID, afterSeq).Order("seq ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages after %d: %w", afterSeq, err)
	}
	return messages, nil
}

// CountMessages 計算房間訊息數；kind 為空字串時計算全部
func (s *roomStore) CountMessages(ctx context.Context, roomID string, kind models.MessageKind) (int64, error) {
	var count int64
	db := s.db.WithContext(ctx).Model(&models.Message{}).Where("room_id = ?", roomID)
	if kind != "" {
		db = db.Where("message_type = ?", kind)
	}
	if err := db.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}
