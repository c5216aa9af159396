// Package metrics объявляет счётчики Prometheus движка репутации.
// Эндпоинт /metrics поднимается в internal/app.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты изменения репутации (метка result)
const (
	ResultApplied  = "applied"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

var RepChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reputation_bot_rep_changes_total",
	Help: "Manual reputation changes by outcome.",
}, []string{"result"})

var ExperienceAwarded = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reputation_bot_experience_awarded_total",
	Help: "Experience points granted for messages.",
})

var LevelChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reputation_bot_level_changes_total",
	Help: "Level changes by direction (up/down).",
}, []string{"direction"})

var VoiceSessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reputation_bot_voice_sessions_closed_total",
	Help: "Closed voice sessions by reputation outcome (short/long/neutral).",
}, []string{"outcome"})

var TimeoutsPenalized = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reputation_bot_timeouts_penalized_total",
	Help: "Reputation penalties for moderation timeouts.",
})

var ImmunityGranted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reputation_bot_immunity_granted_total",
	Help: "Times a member received immunity against negative reputation.",
})

var DailyResets = promauto.NewCounter(prometheus.CounterOpts{
	Name: "reputation_bot_daily_resets_total",
	Help: "Member records whose daily counter was reset by the scheduler.",
})

var NotificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reputation_bot_notifications_failed_total",
	Help: "Dropped notifications by kind (direct/log_channel).",
}, []string{"kind"})

var EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "reputation_bot_events_processed_total",
	Help: "Platform events handled by the engine, by type.",
}, []string{"type"})
