package notify

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

// Toast is a short user-facing notification.
type Toast struct {
	Message string
	Level   Level
}

type Toasts = Hub[Toast]

func NewToasts() *Toasts {
	return &Hub[Toast]{}
}

// Push publishes a toast, defaulting the level to info.
func Push(h *Toasts, message string, level Level) {
	if h == nil {
		return
	}
	if level == "" {
		level = LevelInfo
	}
	h.Publish(Toast{Message: message, Level: level})
}
