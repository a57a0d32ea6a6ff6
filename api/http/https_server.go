package http

import (
	"context"
	"strings"
	"time"

	"SemHub/internal/config"
	"SemHub/internal/initial"
	"SemHub/internal/modules/kb/application/dto/request"
	"SemHub/internal/modules/kb/application/service"
	"SemHub/internal/modules/kb/domain/knowledge"
	"SemHub/internal/modules/kb/infrastructure/cache"
	"SemHub/internal/modules/kb/infrastructure/embedding"
	"SemHub/internal/modules/kb/infrastructure/extract"
	"SemHub/internal/modules/kb/infrastructure/persistence"
	"SemHub/internal/modules/kb/infrastructure/pipeline"
	"SemHub/internal/modules/kb/infrastructure/resilience"
	"SemHub/internal/modules/kb/infrastructure/vectordb"
	kbHandler "SemHub/internal/modules/kb/interface/http"
	"SemHub/pkg/ssl"
	"SemHub/pkg/zlog"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Server 聚合 HTTP 引擎与需要随进程优雅关闭的资源
type Server struct {
	Engine       *gin.Engine
	orchestrator *service.TaskOrchestrator
	cron         *cron.Cron
	closers      []func()
}

// BuildServer 显式组装全部依赖：存储、缓存、嵌入、保护引擎、路由。
// 除配置外没有任何全局状态，测试可以用同样的方式组装假实现。
func BuildServer(conf *config.Config) (*Server, error) {
	ctx := context.Background()
	srv := &Server{}

	db, err := initial.OpenGorm(conf)
	if err != nil {
		return nil, err
	}
	repo := persistence.NewKnowledgeRepository(db)

	milvusCli, err := initial.OpenMilvus(ctx, conf)
	if err != nil {
		return nil, err
	}
	srv.closers = append(srv.closers, func() { _ = milvusCli.Close() })
	vs, err := vectordb.NewMilvusStore(milvusCli, conf.MilvusConfig.MetricType)
	if err != nil {
		return nil, err
	}

	// 两级缓存：进程内为主，Redis 可选外层
	memCache := cache.NewMemoryCache(conf.CacheConfig.MemoryCapacity)
	var layered *cache.LayeredCache
	if strings.TrimSpace(conf.RedisConfig.Host) != "" {
		redisCli, err := initial.OpenRedis(conf)
		if err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, func() { _ = redisCli.Close() })
		layered = cache.NewLayeredCache(memCache, cache.NewRedisCache(redisCli, ""),
			time.Duration(conf.CacheConfig.PromotedTTLMinutes)*time.Minute)
	} else {
		zlog.Warn("未配置 Redis，缓存只有进程内一级")
		layered = cache.NewLayeredCache(memCache, nil,
			time.Duration(conf.CacheConfig.PromotedTTLMinutes)*time.Minute)
	}

	engine := buildResilienceEngine(conf)

	provider, err := embedding.NewProviderFromConfig(ctx, conf)
	if err != nil {
		return nil, err
	}
	embedder := embedding.NewClient(provider, layered, engine, embedding.ClientOptions{
		BatchSize: conf.EmbeddingConfig.BatchSize,
		DocTTL:    time.Duration(conf.CacheConfig.EmbeddingTTLHours) * time.Hour,
		QueryTTL:  time.Duration(conf.CacheConfig.EmbeddingTTLHours) * time.Hour,
	})

	extractor := extract.NewExtractor(conf.ExtractionConfig)
	ingestPipe := pipeline.NewIngestPipeline(extractor, embedder, vs, repo, engine, conf.ChunkingConfig.Strategy)

	orchestrator, err := service.NewTaskOrchestrator(ingestPipe,
		conf.WorkerConfig.PoolSize,
		time.Duration(conf.WorkerConfig.TaskRetentionHours)*time.Hour)
	if err != nil {
		return nil, err
	}
	srv.orchestrator = orchestrator
	if err := orchestrator.StartJanitor(conf.WorkerConfig.JanitorCron); err != nil {
		return nil, err
	}

	collectionSvc := service.NewCollectionService(repo, vs, engine, provider.Model(), provider.Dim())
	documentSvc := service.NewDocumentService(repo, vs, orchestrator, conf.ExtractionConfig.UploadDir)
	searchSvc := service.NewSearchService(repo, vs, embedder, layered, engine,
		time.Duration(conf.CacheConfig.SearchTTLMinutes)*time.Minute)

	if spec := strings.TrimSpace(conf.WorkerConfig.AutoSyncCron); spec != "" {
		srv.cron = cron.New()
		_, err := srv.cron.AddFunc(spec, func() {
			autoSync(collectionSvc, documentSvc)
		})
		if err != nil {
			return nil, err
		}
		srv.cron.Start()
	}

	srv.Engine = buildRouter(conf, collectionSvc, documentSvc, searchSvc, orchestrator)
	return srv, nil
}

func buildResilienceEngine(conf *config.Config) *resilience.Engine {
	toPolicy := func(p config.RetryPolicyConfig) resilience.Policy {
		return resilience.Policy{
			MaxAttempts: p.MaxAttempts,
			BaseDelay:   time.Duration(p.BaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(p.MaxDelayMs) * time.Millisecond,
			Multiplier:  p.Multiplier,
		}
	}
	retrier := resilience.NewRetrier(map[resilience.ErrorClass]resilience.Policy{
		resilience.ClassEmbedding:   toPolicy(conf.ResilienceConfig.Embedding),
		resilience.ClassDocStore:    toPolicy(conf.ResilienceConfig.DocStore),
		resilience.ClassVectorStore: toPolicy(conf.ResilienceConfig.VectorStore),
	}, nil)
	return resilience.NewEngine(retrier, resilience.BreakerConfig{
		FailureThreshold: conf.ResilienceConfig.Breaker.FailureThreshold,
		ResetTimeout:     time.Duration(conf.ResilienceConfig.Breaker.ResetTimeoutSeconds) * time.Second,
		HalfOpenProbes:   conf.ResilienceConfig.Breaker.HalfOpenProbes,
	})
}

// autoSync 定时把所有集合里 pending/failed 的文档重新排队
func autoSync(collectionSvc service.CollectionService, documentSvc service.DocumentService) {
	ctx := context.Background()
	cols, err := collectionSvc.List(ctx, "")
	if err != nil {
		zlog.Error("自动同步：列集合失败", zap.Error(err))
		return
	}
	for _, col := range cols {
		if col.Status != knowledge.CommonStatusEnabled {
			continue
		}
		res, err := documentSvc.Sync(ctx, request.SyncCollectionRequest{CollectionID: col.ID})
		if err != nil {
			zlog.Warn("自动同步失败", zap.Int64("collectionId", col.ID), zap.Error(err))
			continue
		}
		if res.Submitted > 0 {
			zlog.Info("自动同步",
				zap.Int64("collectionId", col.ID),
				zap.Int("submitted", res.Submitted))
		}
	}
}

func buildRouter(
	conf *config.Config,
	collectionSvc service.CollectionService,
	documentSvc service.DocumentService,
	searchSvc service.SearchService,
	orchestrator *service.TaskOrchestrator,
) *gin.Engine {
	ge := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	ge.Use(cors.New(corsConfig))
	ge.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))

	collectionH := kbHandler.NewCollectionHandler(collectionSvc)
	documentH := kbHandler.NewDocumentHandler(documentSvc)
	searchH := kbHandler.NewSearchHandler(searchSvc)
	taskH := kbHandler.NewTaskHandler(orchestrator)

	kb := ge.Group("/kb")
	kb.POST("/createCollection", collectionH.Create)
	kb.GET("/listCollections", collectionH.List)
	kb.GET("/getCollection", collectionH.Get)
	kb.POST("/updateCollectionStatus", collectionH.SetStatus)
	kb.POST("/deleteCollection", collectionH.Delete)

	kb.POST("/submitDocument", documentH.Submit)
	kb.POST("/uploadDocument", documentH.Upload)
	kb.GET("/listDocuments", documentH.List)
	kb.GET("/getDocument", documentH.Get)
	kb.POST("/syncCollection", documentH.Sync)
	kb.POST("/deleteDocument", documentH.Delete)

	kb.POST("/search", searchH.Search)
	kb.GET("/cacheStats", searchH.CacheStats)

	kb.POST("/taskStatus", taskH.Status)
	kb.GET("/listTasks", taskH.ListTasks)

	return ge
}

// Close 释放 worker 池、定时器与外部连接
func (s *Server) Close() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}
	for _, closeFn := range s.closers {
		closeFn()
	}
}
