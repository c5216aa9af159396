// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает ежечасный сброс дневных счётчиков репутации.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// DailyResetSchedule — расписание сброса: каждый час в начале часа.
// Сброс идемпотентен, поэтому частый запуск безопасен и догоняет пропуски.
const DailyResetSchedule = "0 * * * *"

// DailyResetter сбрасывает дневные счётчики (reputation.Service).
type DailyResetter interface {
	ResetDaily(ctx context.Context) (int64, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	resetter DailyResetter
	loc      *time.Location
}

// NewScheduler создаёт планировщик задач в часовом поясе чата.
func NewScheduler(resetter DailyResetter, loc *time.Location) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		resetter: resetter,
		loc:      loc,
	}
}

// Start запускает все фоновые задачи. Первый сброс выполняется сразу.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(DailyResetSchedule, func() { s.resetDaily(ctx) }); err != nil {
		return err
	}
	s.resetDaily(ctx)

	s.cron.Start()
	log.WithField("timezone", s.loc.String()).Info("Планировщик задач запущен")
	return nil
}

func (s *Scheduler) resetDaily(ctx context.Context) {
	n, err := s.resetter.ResetDaily(ctx)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка сброса дневных счётчиков")
		return
	}
	if n > 0 {
		log.WithField("members", n).Info("[CRON] Дневные счётчики сброшены")
	}
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
