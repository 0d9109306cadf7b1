package feedback

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/samber/lo"
)

// Topic 預設主題與其分類
type Topic struct {
	Title    string
	Category string
}

// DefaultTopics 內建的十個主題
var DefaultTopics = []Topic{
	{"The impact of artificial intelligence on job markets", "technology"},
	{"Should social media platforms be regulated more strictly?", "technology"},
	{"Climate change: Individual responsibility vs. corporate accountability", "environment"},
	{"The future of remote work", "society"},
	{"Privacy vs. security in the digital age", "technology"},
	{"Universal basic income: pros and cons", "economy"},
	{"Space exploration: priority or luxury?", "science"},
	{"Education system reform needs", "society"},
	{"Renewable energy transition challenges", "environment"},
	{"The role of government in healthcare", "economy"},
}

// TopicCatalog 從固定清單中隨機選題；未知分類時從全部主題中選
type TopicCatalog struct {
	topics []Topic
	pick   func(n int) int
}

func NewTopicCatalog(topics []Topic) *TopicCatalog {
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	return &TopicCatalog{topics: topics, pick: rand.IntN}
}

func (c *TopicCatalog) SelectTopic(_ context.Context, category string) string {
	candidates := c.topics
	if category != "" {
		filtered := lo.Filter(c.topics, func(t Topic, _ int) bool {
			return strings.EqualFold(t.Category, category)
		})
		if len(filtered) > 0 {
			candidates = filtered
		}
	}
	return candidates[c.pick(len(candidates))].Title
}

// Categories 可用的分類
func (c *TopicCatalog) Categories() []string {
	return lo.Uniq(lo.Map(c.topics, func(t Topic, _ int) string { return t.Category }))
}
