package feedback

import "fmt"

// Trigger 回合回饋的觸發方式
type Trigger string

const (
	TriggerThreshold Trigger = "threshold" // 累積 RoundThreshold 則發言
	TriggerRound     Trigger = "round"     // 每完成一個回合
	TriggerManual    Trigger = "manual"    // 只在手動請求時
)

// ParseTrigger 解析設定檔中的觸發方式
func ParseTrigger(s string) (Trigger, error) {
	switch t := Trigger(s); t {
	case TriggerThreshold, TriggerRound, TriggerManual:
		return t, nil
	case "":
		return TriggerThreshold, nil
	default:
		return "", fmt.Errorf("unknown round trigger %q", s)
	}
}

// Options 一個 Session 的回饋設定
type Options struct {
	RoundThreshold          int
	RoundTrigger            Trigger
	MaxRounds               int // 0 表示不限回合數
	EnableSecondaryFeedback bool
	PerStatementFeedback    bool
	ContextSize             int // 回合回饋帶入的最近發言數
}

// DefaultOptions 預設值：每 3 則發言給一次回饋，帶入最近 5 則
func DefaultOptions() Options {
	return Options{
		RoundThreshold:       3,
		RoundTrigger:         TriggerThreshold,
		PerStatementFeedback: true,
		ContextSize:          5,
	}
}

func (o Options) normalized() Options {
	if o.RoundThreshold <= 0 {
		o.RoundThreshold = 3
	}
	if o.RoundTrigger == "" {
		o.RoundTrigger = TriggerThreshold
	}
	if o.ContextSize <= 0 {
		o.ContextSize = 5
	}
	if o.MaxRounds < 0 {
		o.MaxRounds = 0
	}
	return o
}

// State 排程器判斷時需要的 Session 計數
type State struct {
	StatementsSinceFeedback int  // 上次回合回饋後累積的 user 發言數
	RoundCompleted          bool // 這則發言是否剛好完成一個回合
}

// Scheduler 同步決定是否要排程回饋，本身不呼叫提供者
type Scheduler struct {
	opts Options
}

func NewScheduler(opts Options) *Scheduler {
	return &Scheduler{opts: opts.normalized()}
}

// Options 回傳正規化後的設定
func (s *Scheduler) Options() Options {
	return s.opts
}

// ShouldFirePerStatement 每則發言後是否呼叫次要回饋
func (s *Scheduler) ShouldFirePerStatement() bool {
	return s.opts.PerStatementFeedback && s.opts.EnableSecondaryFeedback
}

// ShouldFireRound 是否要排程一次回合回饋
func (s *Scheduler) ShouldFireRound(state State) bool {
	switch s.opts.RoundTrigger {
	case TriggerThreshold:
		return state.StatementsSinceFeedback >= s.opts.RoundThreshold
	case TriggerRound:
		return state.RoundCompleted && state.StatementsSinceFeedback > 0
	default:
		return false
	}
}

// RoundsExhausted 完成的回合數是否已達上限
func (s *Scheduler) RoundsExhausted(rounds int) bool {
	return s.opts.MaxRounds > 0 && rounds >= s.opts.MaxRounds
}
