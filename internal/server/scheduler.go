package server

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/askdb/askdb/internal/store"
)

// Scheduler fires recurring analysis runs. A redis lock keeps multiple
// instances from running the same schedule twice.
type Scheduler struct {
	Store    *store.Store
	Rdb      *redis.Client // may be nil for single-instance deployments
	Runner   Runner
	Interval time.Duration
	Logger   *log.Logger

	stop chan struct{}
}

// Start launches the tick loop in a goroutine.
func (s *Scheduler) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SCHED] ", log.LstdFlags)
	}
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	s.stop = make(chan struct{})
	ticker := time.NewTicker(s.Interval)
	go func() {
		for {
			select {
			case <-s.stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Shutdown stops the tick loop. In-flight runs finish on their own.
func (s *Scheduler) Shutdown() {
	if s.stop != nil {
		close(s.stop)
	}
}

func (s *Scheduler) tick() {
	ctx := context.Background()
	schedules, err := s.Store.ListSchedules(ctx)
	if err != nil {
		s.Logger.Printf("listing schedules: %v", err)
		return
	}
	for _, sched := range schedules {
		if !isDue(sched.CronExpr, sched.LastRunAt) {
			continue
		}
		if s.Rdb != nil {
			lockKey := "askdb:sched:lock:" + sched.ID
			ok, _ := s.Rdb.SetNX(ctx, lockKey, "1", 2*time.Minute).Result()
			if !ok {
				continue
			}
		}
		if err := s.Store.TouchSchedule(ctx, sched.ID); err != nil {
			s.Logger.Printf("touching schedule %s: %v", sched.ID, err)
			continue
		}
		go func(sched store.Schedule) {
			s.Logger.Printf("firing schedule %s: %s", sched.ID, sched.Question)
			if _, err := s.Runner.Run(context.Background(), sched.Question); err != nil {
				s.Logger.Printf("schedule %s run failed: %v", sched.ID, err)
			}
		}(sched)
	}
}

// isDue determines whether a schedule should fire now given its last run.
// Supports "@daily", "@hourly" and standard 5-field cron expressions.
func isDue(cronSpec string, last *time.Time) bool {
	now := time.Now()
	switch cronSpec {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= 24*time.Hour
		}
		if last == nil {
			return true
		}
		next := expr.Next(*last)
		return !next.After(now)
	}
}
