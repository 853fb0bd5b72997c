package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"charity_bff_v1/internal/config"
	"charity_bff_v1/internal/controller"
	"charity_bff_v1/internal/middleware"
	"charity_bff_v1/internal/model"
	"charity_bff_v1/internal/repository"
	"charity_bff_v1/internal/router"
	"charity_bff_v1/internal/service"
	"charity_bff_v1/internal/task"
	"charity_bff_v1/pkg/charity"
	"charity_bff_v1/pkg/database"
)

func main() {
	app := &cli.App{
		Name:  "charity-bff",
		Usage: "Backend for the charity campaign frontend: like reconciliation and the campaign creation wizard",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Value:   ".env",
				Usage:   "dotenv file loaded before reading the environment",
				EnvVars: []string{"ENV_FILE"},
			},
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			likesCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("charity-bff: %v", err)
	}
}

// ==================== 命令 ====================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the HTTP server",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadRuntime(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			// 1. 初始化数据库
			db, err := initDatabase(cfg)
			if err != nil {
				return err
			}
			defer database.Close(db)

			// 2. 初始化依赖
			deps := initDependencies(cfg, logger, db)

			// 3. 启动定时任务
			tm, err := initTasks(deps)
			if err != nil {
				return err
			}

			// 4. 初始化路由
			r := router.SetupRouter(deps.Controllers, deps.Limiters, logger)

			// 5. 启动服务
			return startServer(deps, r, tm)
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create or update the fallback store tables",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadRuntime(c)
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := initDatabase(cfg)
			if err != nil {
				return err
			}
			defer database.Close(db)

			logger.Info("数据库迁移完成", zap.String("driver", cfg.DBDriver))
			return nil
		},
	}
}

func likesCommand() *cli.Command {
	viewerFlag := &cli.StringFlag{Name: "viewer", Usage: "viewer id", Required: true}

	withRepo := func(c *cli.Context, fn func(ctx context.Context, kv repository.KVRepository, ns string) error) error {
		cfg, logger, err := loadRuntime(c)
		if err != nil {
			return err
		}
		defer logger.Sync()

		db, err := initDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close(db)

		return fn(c.Context, repository.NewKVRepository(db), repository.ViewerNamespace(c.String("viewer")))
	}

	return &cli.Command{
		Name:  "likes",
		Usage: "inspect the locally remembered likes of a viewer",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "print the fallback like record",
				Flags: []cli.Flag{viewerFlag},
				Action: func(c *cli.Context) error {
					return withRepo(c, func(ctx context.Context, kv repository.KVRepository, ns string) error {
						raw, ok, err := kv.Get(ctx, ns, model.LikedCampaignsKey)
						if err != nil {
							return err
						}
						count, err := kv.CountNamespace(ctx, ns)
						if err != nil {
							return err
						}
						if !ok {
							raw = "{}"
						}
						fmt.Fprintf(c.App.Writer, "%s (%d keys)\n%s\n", ns, count, raw)
						return nil
					})
				},
			},
			{
				Name:  "clear",
				Usage: "forget the fallback like record",
				Flags: []cli.Flag{viewerFlag},
				Action: func(c *cli.Context) error {
					return withRepo(c, func(ctx context.Context, kv repository.KVRepository, ns string) error {
						if err := kv.Remove(ctx, ns, model.LikedCampaignsKey); err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "%s cleared\n", ns)
						return nil
					})
				},
			},
		},
	}
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	Config      *config.Config
	Log         *zap.Logger
	DB          *gorm.DB
	Repos       *Repositories
	Services    *Services
	Limiters    *router.Limiters
	Controllers *router.Controllers
}

// Repositories 仓库集合
type Repositories struct {
	KV repository.KVRepository
}

// Services 服务集合
type Services struct {
	Platform *charity.Client
	Notices  *service.NoticeBox
	Likes    *service.LikeService
	Wizard   *service.WizardService
}

// ==================== 初始化函数 ====================

// loadRuntime 读取配置并创建日志
func loadRuntime(c *cli.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(c.String("env-file"))
	if err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return cfg, logger, nil
}

// initDatabase 初始化数据库
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	return database.InitDB(database.Options{
		Driver: cfg.DBDriver,
		DSN:    cfg.DBDSN,
	},
		// Like fallback
		&model.KVEntry{},
	)
}

// initDependencies 初始化所有依赖
func initDependencies(cfg *config.Config, logger *zap.Logger, db *gorm.DB) *Dependencies {
	middleware.SetJWTConfig(&middleware.JWTConfig{Secret: cfg.JWTSecret})

	// -------- Repo 层 --------
	repos := &Repositories{
		KV: repository.NewKVRepository(db),
	}

	// -------- 平台客户端 --------
	platform := charity.NewClient(charity.Config{
		BaseURL:  cfg.CharityAPIBaseURL,
		Timeout:  cfg.CharityAPITimeout,
		Debug:    cfg.CharityAPIDebug,
		ProxyURL: cfg.CharityAPIProxy,
	})

	// -------- 业务服务 --------
	notices := service.NewNoticeBox()
	services := &Services{
		Platform: platform,
		Notices:  notices,
		Likes: service.NewLikeService(
			platform,
			func(viewerID string) service.FallbackStore {
				return repository.NewScopedKV(repos.KV, repository.ViewerNamespace(viewerID))
			},
			middleware.TokenAuthChecker{},
			notices,
			logger,
			service.LikeOptions{
				Timeout:    cfg.LikeTimeout,
				RetryDelay: cfg.LikeRetryDelay,
			},
		),
		Wizard: service.NewWizardService(platform, platform, platform, logger, cfg.WizardSessionTTL),
	}

	limiters := &router.Limiters{
		Like:    middleware.NewRateLimiter(cfg.LikeRateInterval, cfg.LikeRateBurst),
		Publish: middleware.NewRateLimiter(cfg.PublishRateInterval, cfg.PublishRateBurst),
	}

	// -------- Controller 层 --------
	controllers := &router.Controllers{
		Like:   controller.NewLikeController(services.Likes, services.Notices),
		Wizard: controller.NewWizardController(services.Wizard, logger),
		Draft:  controller.NewDraftController(services.Wizard),
	}

	return &Dependencies{
		Config:      cfg,
		Log:         logger,
		DB:          db,
		Repos:       repos,
		Services:    services,
		Limiters:    limiters,
		Controllers: controllers,
	}
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(deps *Dependencies) (*task.TaskManager, error) {
	tm := task.NewTaskManager(&task.TaskManagerDeps{
		Wizard:   deps.Services.Wizard,
		Limiters: []task.LimiterPruner{deps.Limiters.Like, deps.Limiters.Publish},
		Log:      deps.Log,
	}, &task.TaskManagerConfig{
		SweepEnabled: true,
		SweepSpec:    deps.Config.WizardSweepCron,
		LimiterIdle:  30 * time.Minute,
	})
	if err := tm.Start(); err != nil {
		return nil, err
	}
	return tm, nil
}

// ==================== 服务启动 ====================

// startServer 启动服务，收到退出信号后依次停止 HTTP、定时任务、后台点赞请求
func startServer(deps *Dependencies, r *gin.Engine, tm *task.TaskManager) error {
	logger := deps.Log
	srv := &http.Server{
		Addr:              deps.Config.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			tm.Stop()
			return fmt.Errorf("服务启动失败: %w", err)
		}
	}

	logger.Info("正在关闭服务...")

	// 优雅关闭，最多等待 30 秒
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务强制关闭", zap.Error(err))
	}
	tm.Stop()

	// 已乐观切换的点赞需要等远程结果写回兜底存储
	likesDone := make(chan struct{})
	go func() {
		deps.Services.Likes.Wait()
		close(likesDone)
	}()
	select {
	case <-likesDone:
	case <-ctx.Done():
		logger.Warn("等待点赞请求超时，部分结果未写回")
	}

	logger.Info("服务已退出")
	return nil
}
