// Package turn 計算房間中目前與下一位發言者。
//
// 發言順序只用於提示 (UI 顯示輪到誰)，並不限制誰可以發言。
package turn

import "debate_room/internal/apperror"

// Current 回傳索引所指的參與者
func Current(participants []string, idx int) (string, error) {
	if len(participants) == 0 {
		return "", apperror.ErrEmptyParticipantList
	}
	if idx < 0 || idx >= len(participants) {
		idx = ((idx % len(participants)) + len(participants)) % len(participants)
	}
	return participants[idx], nil
}

// Advance 回傳下一個索引；wrapped 為 true 表示回到 0，也就是完成一個回合
func Advance(idx, length int) (next int, wrapped bool) {
	if length <= 0 {
		return 0, false
	}
	next = (idx + 1) % length
	return next, next == 0
}

// Sequencer 保存固定的參與者順序與目前索引
type Sequencer struct {
	participants []string
	index        int
	rounds       int
}

// NewSequencer 建立一個從第一位參與者開始的 Sequencer
func NewSequencer(participants []string) (*Sequencer, error) {
	if len(participants) == 0 {
		return nil, apperror.ErrEmptyParticipantList
	}
	list := make([]string, len(participants))
	copy(list, participants)
	return &Sequencer{participants: list}, nil
}

// Current 目前輪到的參與者
func (s *Sequencer) Current() string {
	return s.participants[s.index]
}

// Next 下一位參與者，不改變狀態
func (s *Sequencer) Next() string {
	next, _ := Advance(s.index, len(s.participants))
	return s.participants[next]
}

// Index 目前索引
func (s *Sequencer) Index() int {
	return s.index
}

// Rounds 已完成的回合數
func (s *Sequencer) Rounds() int {
	return s.rounds
}

// Advance 前進一位，回傳是否剛完成一個回合
func (s *Sequencer) Advance() bool {
	next, wrapped := Advance(s.index, len(s.participants))
	s.index = next
	if wrapped {
		s.rounds++
	}
	return wrapped
}

// Restore 依已接受的發言數重建索引與回合數
func (s *Sequencer) Restore(statements int) {
	if statements < 0 {
		statements = 0
	}
	s.index = statements % len(s.participants)
	s.rounds = statements / len(s.participants)
}

// Participants 回傳參與者順序的副本
func (s *Sequencer) Participants() []string {
	list := make([]string, len(s.participants))
	copy(list, s.participants)
	return list
}
