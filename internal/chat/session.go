package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Session struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"`
	Messages  []Turn `json:"messages"`
}

func newSession() Session {
	return Session{ID: uuid.NewString(), CreatedAt: time.Now().UnixMilli(), Messages: []Turn{}}
}

func (s Session) clone() Session {
	s.Messages = append([]Turn(nil), s.Messages...)
	return s
}

// StorageKey is the persistence key for the sessions of one chapter.
func StorageKey(chapterUID string) string {
	if chapterUID == "" {
		chapterUID = "global"
	}
	return "ai_sessions:" + chapterUID
}

func decodeSessions(data []byte) []Session {
	var out []Session
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	return out
}
