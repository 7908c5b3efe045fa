package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fyerfyer/regulation-mapper/api"
	"github.com/fyerfyer/regulation-mapper/api/handler"
	"github.com/fyerfyer/regulation-mapper/api/middleware"
	appconfig "github.com/fyerfyer/regulation-mapper/config"
	"github.com/fyerfyer/regulation-mapper/internal/cache"
	"github.com/fyerfyer/regulation-mapper/internal/classifier"
	"github.com/fyerfyer/regulation-mapper/internal/corpus"
	"github.com/fyerfyer/regulation-mapper/internal/database"
	"github.com/fyerfyer/regulation-mapper/internal/document"
	"github.com/fyerfyer/regulation-mapper/internal/llm"
	"github.com/fyerfyer/regulation-mapper/internal/repository"
	"github.com/fyerfyer/regulation-mapper/internal/services"
	"github.com/fyerfyer/regulation-mapper/pkg/storage"
	"github.com/fyerfyer/regulation-mapper/pkg/taskqueue"
)

// flags 命令行参数，非零值覆盖配置文件
type flags struct {
	ConfigFile string // 配置文件路径
	Port       int    // 服务端口
	Mode       string // 运行模式 (debug/release)
	LogLevel   string // 日志级别
}

func main() {
	f := parseFlags()

	cfg, err := appconfig.Load(f.ConfigFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyFlags(cfg, f)

	gin.SetMode(cfg.Server.Mode)

	// 初始化日志
	logger, err := setupLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("Starting Regulation Mapper...")

	// 初始化数据库
	if err := database.Setup(&database.Config{Type: cfg.Database.Type, DSN: cfg.Database.DSN}, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// 创建报告存储
	reportStorage, err := setupStorage(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// 创建分类器
	verdictClassifier, err := setupClassifier(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize classifier: %v", err)
	}

	// 初始化任务队列（如果启用）
	var queue *taskqueue.RedisQueue
	if cfg.Queue.Enable {
		queue, err = setupTaskQueue(cfg.Queue, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		logger.Info("Task queue initialized successfully")
	}

	aggregator := services.NewAggregator(verdictClassifier,
		services.WithWorkers(cfg.Mapper.Workers),
		services.WithTaskTimeout(cfg.Mapper.TaskTimeout),
		services.WithAggregatorLogger(logger),
	)
	publisher := services.NewPublisher(reportStorage, logger)
	fetcher := document.NewHTTPFetcher(
		document.WithTimeout(cfg.Fetch.Timeout),
		document.WithRetry(cfg.Fetch.MaxRetries, 500*time.Millisecond),
		document.WithFetcherLogger(logger),
	)

	mappingOptions := []services.MappingOption{
		services.WithMappingRepository(repository.NewMappingRepository()),
		services.WithLogger(logger),
	}
	if queue != nil {
		mappingOptions = append(mappingOptions, services.WithTaskQueue(queue))
	}

	mappingService := services.NewMappingService(
		fetcher,
		corpus.NewFileLoader(cfg.Mapper.CorpusPath),
		aggregator,
		publisher,
		mappingOptions...,
	)

	// 启动任务处理器
	if queue != nil {
		worker := taskqueue.NewRedisWorker(queue, nil)
		worker.RegisterHandler(taskqueue.TaskMapRegulations, mappingService)
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start task worker: %v", err)
		}
		defer worker.Stop()
		logger.Info("Mapping tasks will be processed by the async worker")
	}

	// 设置路由
	r := api.SetupRouter(handler.NewMappingHandler(mappingService))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 优雅关闭
	go func() {
		logger.Infof("Server is running on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() flags {
	f := flags{}

	flag.StringVar(&f.ConfigFile, "config", "config.yaml", "Path to config file")
	flag.IntVar(&f.Port, "port", 0, "Server port (overrides config)")
	flag.StringVar(&f.Mode, "mode", "", "Run mode debug/release (overrides config)")
	flag.StringVar(&f.LogLevel, "log-level", "", "Log level debug/info/warn/error (overrides config)")

	flag.Parse()
	return f
}

// applyFlags 用命令行参数覆盖配置文件中的值
func applyFlags(cfg *appconfig.Config, f flags) {
	if f.Port != 0 {
		cfg.Server.Port = f.Port
	}
	if f.Mode != "" {
		cfg.Server.Mode = f.Mode
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
}

// setupLogger 设置日志系统，配置了日志文件时按大小轮转
func setupLogger(cfg appconfig.LogConfig) (*logrus.Logger, error) {
	var output io.Writer
	if cfg.File != "" {
		output = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	}

	if err := middleware.ConfigureLogger(cfg.Level, cfg.Format, output); err != nil {
		return nil, err
	}
	return middleware.GetLogger(), nil
}

// setupStorage 设置报告存储
func setupStorage(cfg appconfig.StorageConfig) (storage.Storage, error) {
	return storage.New(storage.Config{
		Type:      cfg.Type,
		Path:      cfg.Path,
		Endpoint:  cfg.Endpoint,
		Bucket:    cfg.Bucket,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		UploadURL: cfg.UploadURL,
		PublicURL: cfg.PublicURL,
	})
}

// setupClassifier 设置章节分类器
// 未配置API密钥时不创建大模型客户端，每个章节都会得到认证失败的结果
func setupClassifier(cfg *appconfig.Config, logger *logrus.Logger) (*classifier.Classifier, error) {
	var client llm.Client
	if cfg.LLM.APIKey != "" {
		var err error
		client, err = llm.NewClient(cfg.LLM.Provider,
			llm.WithAPIKey(cfg.LLM.APIKey),
			llm.WithBaseURL(cfg.LLM.Endpoint),
			llm.WithModel(cfg.LLM.Model),
			llm.WithTimeout(cfg.LLM.Timeout),
			llm.WithMaxRetries(cfg.LLM.MaxRetries),
			llm.WithMaxTokens(cfg.LLM.MaxTokens),
			llm.WithTemperature(cfg.LLM.Temperature),
			llm.WithRateLimit(cfg.LLM.RequestsPerSecond, 1),
		)
		if err != nil {
			return nil, err
		}
	} else {
		logger.Warn("LLM API key is not configured, every chapter will be reported as an authentication failure")
	}

	opts := []classifier.Option{classifier.WithLogger(logger)}
	if cfg.Cache.Enable {
		verdictCache, err := setupCache(cfg.Cache)
		if err != nil {
			return nil, err
		}
		opts = append(opts, classifier.WithCache(verdictCache, time.Duration(cfg.Cache.TTL)*time.Second))
	}

	return classifier.New(client, classifier.Config{
		APIKey:           cfg.LLM.APIKey,
		Model:            cfg.LLM.Model,
		Temperature:      cfg.LLM.Temperature,
		StructuredOutput: cfg.LLM.StructuredOutput,
	}, opts...)
}

// setupCache 设置判定缓存
func setupCache(cfg appconfig.CacheConfig) (cache.Cache, error) {
	cacheConfig := cache.DefaultConfig()
	cacheConfig.Type = cfg.Type
	if cfg.TTL > 0 {
		cacheConfig.DefaultTTL = time.Duration(cfg.TTL) * time.Second
	}
	if cfg.Type == "redis" {
		cacheConfig.RedisAddr = cfg.Address
		cacheConfig.RedisPassword = cfg.Password
		cacheConfig.RedisDB = cfg.DB
	}

	return cache.NewCache(cacheConfig)
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(cfg appconfig.QueueConfig, logger *logrus.Logger) (*taskqueue.RedisQueue, error) {
	queueConfig := taskqueue.DefaultConfig()
	queueConfig.RedisAddr = cfg.RedisAddr
	queueConfig.RedisPassword = cfg.RedisPassword
	queueConfig.RedisDB = cfg.RedisDB
	if cfg.Concurrency > 0 {
		queueConfig.Concurrency = cfg.Concurrency
	}
	queueConfig.RetryLimit = cfg.RetryLimit
	if cfg.RetryDelay > 0 {
		queueConfig.RetryDelay = time.Duration(cfg.RetryDelay) * time.Second
	}

	logger.WithFields(logrus.Fields{
		"redis_addr":  cfg.RedisAddr,
		"concurrency": queueConfig.Concurrency,
		"retry_limit": queueConfig.RetryLimit,
	}).Info("Setting up task queue")

	queue, err := taskqueue.NewRedisQueue(queueConfig)
	if err != nil {
		return nil, err
	}
	queue.SetLogger(logger)
	return queue, nil
}
