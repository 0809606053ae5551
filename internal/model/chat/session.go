package chat

import (
	"time"

	"github.com/zhouzirui/locus/backend/internal/model/session"
)

// Session captures a live practice conversation bound to a scene.
type Session struct {
	ID               string         `json:"id"`
	SceneID          string         `json:"sceneId"`
	Config           session.Config `json:"config"`
	LevelDescription string         `json:"levelDescription"`
	CreatedAt        time.Time      `json:"createdAt"`
}
