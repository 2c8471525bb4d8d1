package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fachebot/teams-digest-bot/internal/config"
	"github.com/fachebot/teams-digest-bot/internal/logger"
	"github.com/fachebot/teams-digest-bot/internal/pipeline"
	"github.com/robfig/cron/v3"
)

// runner 执行一次完整的总结流程
type runner interface {
	Run(ctx context.Context) *pipeline.Result
}

// cronLogger 将 cron 的日志转到 logrus
type cronLogger struct{}

func (cronLogger) Printf(format string, args ...any) {
	logger.Warnf("[Scheduler] "+format, args...)
}

type Scheduler struct {
	cron   *cron.Cron
	job    cron.Job
	runner runner
	config *config.Run
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// locUTC 调度使用 UTC
var locUTC = time.UTC

func NewScheduler(runner runner, cfg *config.Run) *Scheduler {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(locUTC)),
		runner: runner,
		config: cfg,
	}
	// 定时触发与启动时运行共用同一个 job，同一时间最多一次运行，重叠的触发被跳过
	s.job = cron.NewChain(cron.SkipIfStillRunning(cron.VerbosePrintfLogger(cronLogger{}))).
		Then(cron.FuncJob(s.runDailySummary))
	return s
}

// Start 启动调度器
func (s *Scheduler) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	// 注册每日总结任务
	_, err := s.cron.AddJob(s.config.Cron, s.job)
	if err != nil {
		return fmt.Errorf("注册每日总结任务失败: %w", err)
	}

	s.cron.Start()
	logger.Infof("[Scheduler] 调度器已启动，每日总结任务: %s", s.config.Cron)

	// 启动时立即执行一次
	if s.config.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.job.Run()
		}()
	}

	return nil
}

// Stop 停止调度器，等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.wg.Wait()
	logger.Infof("[Scheduler] 调度器已停止")
}

// runDailySummary 执行每日总结任务（cron 触发）
func (s *Scheduler) runDailySummary() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		logger.Infof("[Scheduler] 任务已取消，退出")
		return
	default:
	}

	logger.Infof("[Scheduler] 开始执行每日总结任务")
	result := s.runner.Run(ctx)
	if result.Failed() {
		logger.Errorf("[Scheduler] 每日总结执行失败 (停在 %s): %s", result.LastState, result.Reason)
		return
	}
	logger.Infof("[Scheduler] 每日总结任务完成，共 %d 条消息，耗时 %v",
		result.MessageCount, result.FinishedAt.Sub(result.StartedAt))
}
