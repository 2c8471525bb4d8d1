package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fachebot/teams-digest-bot/internal/config"
	"github.com/fachebot/teams-digest-bot/internal/journal"
	"github.com/fachebot/teams-digest-bot/internal/logger"
	"github.com/fachebot/teams-digest-bot/internal/scheduler"
	"github.com/fachebot/teams-digest-bot/internal/svc"
)

var (
	configFile = flag.String("f", "etc/config.yaml", "the config file")
	history    = flag.Int("history", 0, "print the most recent N runs from the journal and exit")
)

func main() {
	flag.Parse()

	// 读取配置文件
	c, err := config.Read(*configFile)
	if err != nil {
		logger.Fatalf("读取配置文件失败, %s", err)
	}

	// 查看运行记录只需要本地数据库，不要求凭据
	if *history > 0 {
		os.Exit(printHistory(c.Journal.Path, *history))
	}

	if err := c.Validate(); err != nil {
		logger.Fatalf("配置无效, %s", err)
	}

	// 初始化日志
	if err := logger.Setup(c.Log.Level, c.Log.Dir); err != nil {
		logger.Fatalf("初始化日志失败, %s", err)
	}

	// 创建服务上下文
	svcCtx := svc.NewServiceContext(c)

	// 未配置 cron 时只运行一次
	if c.Run.Cron == "" {
		os.Exit(runOnce(svcCtx))
	}

	// 创建并启动调度器
	schedulerInstance := scheduler.NewScheduler(svcCtx.Pipeline, &c.Run)
	if err := schedulerInstance.Start(); err != nil {
		logger.Fatalf("[Scheduler] 启动调度器失败: %s", err)
	}

	// 等待程序退出
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	// 优雅关闭
	logger.Infof("正在关闭服务...")
	schedulerInstance.Stop()
	svcCtx.Close()
	logger.Infof("服务已停止")
}

// runOnce 执行一次总结流程，返回进程退出码
func runOnce(svcCtx *svc.ServiceContext) int {
	defer svcCtx.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result := svcCtx.Pipeline.Run(ctx)
	if result.Failed() {
		return 1
	}
	return 0
}

// printHistory 输出运行记录中最近的 limit 条
func printHistory(path string, limit int) int {
	j, err := journal.Open(path)
	if err != nil {
		logger.Errorf("打开运行记录数据库失败, %v", err)
		return 1
	}
	defer j.Close()

	runs, err := j.Recent(context.Background(), limit)
	if err != nil {
		logger.Errorf("读取运行记录失败, %v", err)
		return 1
	}
	for _, r := range runs {
		fmt.Printf("%s  %-7s  last=%-13s  messages=%-4d  degraded=%-5t  %s\n",
			r.StartedAt.Format(time.RFC3339), r.State, r.LastState, r.MessageCount, r.Degraded, r.Reason)
	}
	return 0
}
