package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"debate_room/internal/apperror"
	"debate_room/internal/models"
)

func (s *roomStore) CreateRoom(ctx context.Context, kind models.RoomKind, participants []string, topic string) (*models.Room, error) {
	list := make([]string, len(participants))
	copy(list, participants)

	room := &models.Room{
		RoomID:       s.newID(),
		RoomType:     kind,
		Topic:        topic,
		Participants: list,
		IsActive:     true,
		CreatedAt:    s.clock.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Room{}).Where("room_id = ?", room.RoomID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperror.ErrDuplicateRoomID
		}
		return tx.Create(room).Error
	})
	switch {
	case errors.Is(err, apperror.ErrDuplicateRoomID), errors.Is(err, gorm.ErrDuplicatedKey):
		return nil, apperror.ErrDuplicateRoomID
	case err != nil:
		return nil, fmt.Errorf("create room: %w", err)
	}

	s.logger.Debug("room created", "room_id", room.RoomID, "room_type", room.RoomType)
	return room, nil
}

func (s *roomStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	err := s.db.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return &room, nil
}

// ListActiveRooms 查詢所有啟用中的房間，新建立的在前
func (s *roomStore) ListActiveRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := s.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at DESC").Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("list active rooms: %w", err)
	}
	return rooms, nil
}

// Deactivate 停用房間；重複停用不會出錯
func (s *roomStore) Deactivate(ctx context.Context, roomID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Room{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return apperror.ErrRoomNotFound
		}
		return tx.Model(&models.Room{}).Where("room_id = ?", roomID).Update("is_active", false).Error
	})
}
