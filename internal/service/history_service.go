package service

import (
	"context"
	"sort"
	"time"

	"next-chatbot-go/internal/model"
	"next-chatbot-go/internal/repository"
	"next-chatbot-go/pkg/assistant"
	"next-chatbot-go/pkg/log"
)

const (
	LabelToday       = "Today"
	LabelYesterday   = "Yesterday"
	LabelUnknownDate = "Unknown date"
	// NoUserMessagePreview 用于没有任何用户消息的会话。
	NoUserMessagePreview = "No user message"

	longDateLayout = "Monday, January 2, 2006"
)

// HistoryService 负责侧栏的历史会话列表。
type HistoryService interface {
	// Browse 任何错误都只记录日志并返回空列表。
	Browse(ctx context.Context, clientID string) []model.HistoryGroup
}

type historyService struct {
	assistant  assistant.Client
	identities repository.IdentityRepository
	location   *time.Location
	now        func() time.Time
}

// NewHistoryService 创建一个新的 HistoryService 实例。
func NewHistoryService(assistantClient assistant.Client, identities repository.IdentityRepository, location *time.Location) HistoryService {
	if location == nil {
		location = time.Local
	}
	return &historyService{
		assistant:  assistantClient,
		identities: identities,
		location:   location,
		now:        time.Now,
	}
}

func (s *historyService) Browse(ctx context.Context, clientID string) []model.HistoryGroup {
	identity, err := s.identities.GetIdentity(ctx, clientID)
	if err != nil {
		log.Warnf("[HistoryService] 读取身份信息失败, client: %s, error: %v", clientID, err)
		return []model.HistoryGroup{}
	}
	if identity.Email == "" {
		return []model.HistoryGroup{}
	}

	sessions, err := s.assistant.History(ctx, identity.Email)
	if err != nil {
		log.Warnf("[HistoryService] 获取历史会话失败, client: %s, error: %v", clientID, err)
		return []model.HistoryGroup{}
	}
	return GroupByDay(sessions, s.now(), s.location)
}

// DayLabel 按距 now 的时长打标签：24 小时以内为 Today，24 到 48 小时（含）为 Yesterday，
// 其余为 loc 时区下的长日期。未来的时间也算作 Today。
func DayLabel(ts, now time.Time, loc *time.Location) string {
	const day = 24 * time.Hour
	elapsed := now.Sub(ts)
	switch {
	case elapsed < day:
		return LabelToday
	case elapsed <= 2*day:
		return LabelYesterday
	default:
		return ts.In(loc).Format(longDateLayout)
	}
}

// GroupByDay 把会话按日期分组。组按其中最新的会话排序，组内按时间倒序；
// 时间缺失或无法解析的会话放在最后的 "Unknown date" 组中，保持原顺序。
func GroupByDay(sessions []model.ChatSession, now time.Time, loc *time.Location) []model.HistoryGroup {
	if loc == nil {
		loc = time.Local
	}

	var dated, undated []model.HistoryEntry
	for _, session := range sessions {
		entry := model.HistoryEntry{SessionID: session.SessionID, Preview: NoUserMessagePreview}
		if msg, ok := session.LastUserMessage(); ok {
			entry.Preview = msg.Content
		}
		raw, ok := session.ActivityTime()
		if !ok {
			undated = append(undated, entry)
			continue
		}
		entry.Date = raw
		ts, err := model.ParseTimestamp(raw)
		if err != nil {
			undated = append(undated, entry)
			continue
		}
		entry.Timestamp = ts
		dated = append(dated, entry)
	}

	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].Timestamp.After(dated[j].Timestamp)
	})

	groups := make([]model.HistoryGroup, 0)
	index := make(map[string]int)
	for _, entry := range dated {
		label := DayLabel(entry.Timestamp, now, loc)
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, model.HistoryGroup{Label: label})
		}
		groups[i].Entries = append(groups[i].Entries, entry)
	}
	if len(undated) > 0 {
		groups = append(groups, model.HistoryGroup{Label: LabelUnknownDate, Entries: undated})
	}
	return groups
}
