package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fachebot/review-insight/internal/analyzer"
	"github.com/fachebot/review-insight/internal/apperr"
	"github.com/fachebot/review-insight/internal/config"
	"github.com/fachebot/review-insight/internal/layout"
	"github.com/fachebot/review-insight/internal/logger"
	"github.com/fachebot/review-insight/internal/metrics"
	"github.com/fachebot/review-insight/internal/model"
	"github.com/fachebot/review-insight/internal/pipeline"
	"github.com/fachebot/review-insight/internal/scheduler"
	"github.com/fachebot/review-insight/internal/svc"
	"github.com/fachebot/review-insight/internal/textnorm"
	"github.com/fachebot/review-insight/internal/topic"
)

var configFile = flag.String("f", "etc/config.yaml", "the config file")

const usage = `用法: review-insight [-f etc/config.yaml] <命令> [参数]

命令:
  import <file>           导入爬虫输出 {"app": {...}, "reviews": [...]}
  list                    列出所有应用
  show <appId>            查看应用、评论及最近一次定时分析
  analyze <appId>         AI 分析应用的全部评论
  topics [-k N] <appId>   主题发现
  delete <appId>          删除应用及其评论
  serve                   运行定时分析和指标服务，直到收到退出信号
`

// importFile 爬虫输出格式
type importFile struct {
	App     model.AppData      `json:"app"`
	Reviews []model.ReviewData `json:"reviews"`
}

// showResponse show 命令的输出
type showResponse struct {
	App     *model.App         `json:"app_info"`
	Reviews []*model.Review    `json:"reviews"`
	LastRun *model.AnalysisRun `json:"last_run,omitempty"`
}

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// 读取配置文件
	c, err := config.LoadFromFile(*configFile)
	if err != nil {
		logger.Fatalf("读取配置文件失败, %s", err)
	}
	logger.Setup(c.Log)
	if commandNeedsLLM(args[0], c) {
		if err := c.LLM.ValidateCredentials(); err != nil {
			logger.Fatalf("命令 %s 需要 LLM 配置, %s", args[0], err)
		}
	}

	// 创建数据目录
	if c.Database.Driver == "sqlite3" {
		if _, err := os.Stat("data"); os.IsNotExist(err) {
			err := os.Mkdir("data", 0755)
			if err != nil {
				logger.Fatalf("创建数据目录失败, %s", err)
			}
		}
	}

	// 创建服务上下文
	svcCtx := svc.NewServiceContext(c)
	defer svcCtx.Close()

	tokenizer := textnorm.Select(c.Tagger)
	engine := topic.NewEngine(c.Topic, tokenizer, layout.NewProjector(c.Layout))
	analyzerInstance := analyzer.NewAnalyzer(svcCtx.LLMClient, svcCtx.AppModel, c.Analysis)
	pipelineInstance := pipeline.NewPipeline(svcCtx.AppModel, svcCtx.ReviewModel, analyzerInstance, engine, c.Topic.K)

	if args[0] == "serve" {
		serve(svcCtx, pipelineInstance)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runCommand(ctx, svcCtx, pipelineInstance, args)
	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n\n", err)
			flag.Usage()
			os.Exit(2)
		}
		printJSON(apperr.Payload(err))
		if apperr.IsSoft(err) {
			return
		}
		logger.Errorf("命令 %s 执行失败: %v", args[0], err)
		svcCtx.Close()
		os.Exit(1)
	}
	printJSON(result)
}

var errUsage = errors.New("参数错误")

// commandNeedsLLM 只有 analyze 和开启定时分析的 serve 会调用 LLM
func commandNeedsLLM(cmd string, c *config.Config) bool {
	switch cmd {
	case "analyze":
		return true
	case "serve":
		return c.Schedule.Enable
	}
	return false
}

func runCommand(ctx context.Context, svcCtx *svc.ServiceContext, p *pipeline.Pipeline, args []string) (any, error) {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "import":
		if len(rest) != 1 {
			return nil, fmt.Errorf("%w: import 需要一个文件路径", errUsage)
		}
		return importApp(ctx, svcCtx, rest[0])

	case "list":
		apps, err := svcCtx.AppModel.List(ctx)
		if err != nil {
			return nil, apperr.Persistence(err, "查询应用列表失败")
		}
		if apps == nil {
			apps = []*model.App{}
		}
		return apps, nil

	case "show":
		if len(rest) != 1 {
			return nil, fmt.Errorf("%w: show 需要应用ID", errUsage)
		}
		return showApp(ctx, svcCtx, rest[0])

	case "analyze":
		if len(rest) != 1 {
			return nil, fmt.Errorf("%w: analyze 需要应用ID", errUsage)
		}
		return p.Analyze(ctx, rest[0])

	case "topics":
		fs := flag.NewFlagSet("topics", flag.ContinueOnError)
		k := fs.Int("k", 0, "主题数，0 表示使用配置中的默认值")
		if err := fs.Parse(rest); err != nil {
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		if fs.NArg() != 1 {
			return nil, fmt.Errorf("%w: topics 需要应用ID", errUsage)
		}
		return p.DiscoverTopics(ctx, fs.Arg(0), *k)

	case "delete":
		if len(rest) != 1 {
			return nil, fmt.Errorf("%w: delete 需要应用ID", errUsage)
		}
		if err := p.DeleteApp(ctx, rest[0]); err != nil {
			return nil, err
		}
		return map[string]string{"message": "App deleted successfully"}, nil
	}
	return nil, fmt.Errorf("%w: 未知命令 %s", errUsage, cmd)
}

func importApp(ctx context.Context, svcCtx *svc.ServiceContext, filename string) (*model.App, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var in importFile
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("解析导入文件失败: %w", err)
	}
	if in.App.AppID == "" {
		return nil, fmt.Errorf("导入文件缺少 app.app_id")
	}

	app, created, err := svcCtx.AppModel.Create(ctx, &in.App, in.Reviews)
	if err != nil {
		return nil, apperr.Persistence(err, "保存应用 %s 失败", in.App.AppID)
	}
	if created {
		logger.Infof("[Store] 已导入应用 %s，共 %d 条评论", app.AppID, len(in.Reviews))
	} else {
		logger.Infof("[Store] 应用 %s 已存在，保持原样", app.AppID)
	}
	return app, nil
}

func showApp(ctx context.Context, svcCtx *svc.ServiceContext, appID string) (*showResponse, error) {
	app, err := svcCtx.AppModel.Get(ctx, appID)
	if err != nil {
		if model.IsNotFound(err) {
			return nil, apperr.AppNotFound(appID)
		}
		return nil, apperr.Persistence(err, "读取应用 %s 失败", appID)
	}
	reviews, err := svcCtx.ReviewModel.GetByApp(ctx, appID)
	if err != nil {
		return nil, apperr.Persistence(err, "读取应用 %s 的评论失败", appID)
	}

	resp := &showResponse{App: app, Reviews: reviews}
	run, err := svcCtx.AnalysisRunModel.LatestByApp(ctx, appID)
	if err == nil {
		resp.LastRun = run
	} else if !model.IsNotFound(err) {
		logger.Warnf("[Store] 查询应用 %s 的运行记录失败: %v", appID, err)
	}
	return resp, nil
}

func serve(svcCtx *svc.ServiceContext, p *pipeline.Pipeline) {
	c := svcCtx.Config

	// 创建并启动调度器
	var schedulerInstance *scheduler.Scheduler
	if c.Schedule.Enable {
		schedulerInstance = scheduler.NewScheduler(svcCtx.AppModel, p, svcCtx.AnalysisRunModel, &c.Schedule)
		if err := schedulerInstance.Start(); err != nil {
			logger.Fatalf("[Scheduler] 启动调度器失败: %s", err)
		}
	}

	// 暴露 Prometheus 指标
	var server *http.Server
	if c.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		server = &http.Server{Addr: c.Metrics.ListenAddr, Handler: mux}
		go func() {
			logger.Infof("[Metrics] 指标服务监听 %s", c.Metrics.ListenAddr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorf("[Metrics] 指标服务异常退出: %v", err)
			}
		}()
	}

	// 等待程序退出
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch

	// 优雅关闭
	logger.Infof("正在关闭服务...")
	if schedulerInstance != nil {
		schedulerInstance.Stop()
	}
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Infof("[Metrics] 关闭失败, %v", err)
		}
	}
	logger.Infof("服务已停止")
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		logger.Errorf("输出结果失败: %v", err)
	}
}
