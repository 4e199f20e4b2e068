package app

import (
	"github.com/Soravit-Ice/Random-Call-BE/internal/config"
	"github.com/Soravit-Ice/Random-Call-BE/internal/modules/tasks/reaper"
	pkgcron "github.com/Soravit-Ice/Random-Call-BE/internal/pkg/cron"
)

// registerCronJobs registers all scheduled background jobs.
func registerCronJobs(sched *pkgcron.Scheduler, rp *reaper.Reaper, cfg *config.AppConfig) {
	sched.Register(rp.Job(cfg.Reaper.Interval, cfg.Reaper.StaleAfter))
}
