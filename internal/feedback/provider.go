// Package feedback 決定何時向回饋代理請求內容，並定義與外部提供者之間的型別化介面。
//
// 提供者本身 (語言模型或啟發式規則) 不屬於核心；核心只依賴 Provider、Analyzer
// 與 TopicProvider 三個介面。
package feedback

import (
	"context"
)

// 保留的代理身分，不需要出現在參與者名單中也能發言
const (
	FacilitatorName   = "Facilitator"
	LanguageCoachName = "Language Coach"
)

// EmptyHistoryText 沒有任何發言時手動請求回饋的回覆
const EmptyHistoryText = "Let's begin the discussion. Who would like to start?"

// Purpose 回饋請求的用途
type Purpose string

const (
	PurposeRound   Purpose = "round"   // 回合或定期回饋
	PurposeSummary Purpose = "summary" // 結束時的總結
)

// Statement 一則參與者發言
type Statement struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// Request 傳給回饋提供者的上下文
type Request struct {
	Purpose      Purpose             `json:"purpose"`
	RoomKind     string              `json:"room_type"`
	Topic        string              `json:"topic"`
	Participants []string            `json:"participants"`
	Statements   []Statement         `json:"statements"`
	Notes        map[string][]string `json:"notes,omitempty"` // 每位參與者累積的語言回饋
}

// Response 提供者回傳的結果
type Response struct {
	Text string `json:"text"`
}

// Provider 產生主持人回饋；失敗時回傳 apperror.ErrProviderUnavailable
type Provider interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// Analyzer 針對單一發言給出即時的次要回饋 (例如語言建議)
type Analyzer interface {
	Analyze(ctx context.Context, speaker, statement string) (Response, error)
}

// TopicProvider 選擇討論主題，永遠會回傳一個主題
type TopicProvider interface {
	SelectTopic(ctx context.Context, category string) string
}

// ReadinessChecker 由需要事先確認可用性的遠端提供者實作
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}
