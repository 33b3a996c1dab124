package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// SchedulerService runs background jobs: today just the memory write queue
// flush, on the cron schedule from policy.
type SchedulerService struct {
	scheduler gocron.Scheduler
	memory    *MemoryService
}

// NewSchedulerService creates the scheduler.
func NewSchedulerService(memory *MemoryService) (*SchedulerService, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &SchedulerService{scheduler: scheduler, memory: memory}, nil
}

// Start registers the jobs and starts the scheduler.
func (s *SchedulerService) Start(memoryFlushSchedule string) error {
	_, err := s.scheduler.NewJob(
		gocron.CronJob(memoryFlushSchedule, false),
		gocron.NewTask(s.flushMemoryQueue),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule memory flush: %w", err)
	}

	s.scheduler.Start()
	log.Printf("✅ [SCHEDULER] Started, memory flush on %q", memoryFlushSchedule)
	return nil
}

func (s *SchedulerService) flushMemoryQueue() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	applied, err := s.memory.FlushQueue(ctx, 50)
	if err != nil {
		log.Printf("⚠️ [SCHEDULER] Memory flush failed: %v", err)
		return
	}
	if applied > 0 {
		log.Printf("💾 [SCHEDULER] Flushed %d memory writes", applied)
	}
}

// Stop shuts the scheduler down.
func (s *SchedulerService) Stop() {
	if err := s.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️ [SCHEDULER] Shutdown error: %v", err)
	}
}
