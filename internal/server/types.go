package server

import (
	"time"

	"github.com/KaramelBytes/lapboard-cli/internal/telemetry"
)

// SessionResponse describes an uploaded session.
type SessionResponse struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Rows      telemetry.DropStats `json:"rows"`
	Dropped   int                 `json:"dropped"`
	Drivers   []string            `json:"drivers"`
	Laps      []int               `json:"laps"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresIn string              `json:"expires_in"`
}

type errorResponse struct {
	Error   string   `json:"error"`
	Missing []string `json:"missing,omitempty"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}
