package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/tgshop/internal/analytics"
	"github.com/hitoshi/tgshop/internal/auth"
	"github.com/hitoshi/tgshop/internal/cart"
	"github.com/hitoshi/tgshop/internal/catalog"
	"github.com/hitoshi/tgshop/internal/config"
	"github.com/hitoshi/tgshop/internal/customer"
	"github.com/hitoshi/tgshop/internal/database"
	"github.com/hitoshi/tgshop/internal/handler"
	"github.com/hitoshi/tgshop/internal/logger"
	"github.com/hitoshi/tgshop/internal/metrics"
	"github.com/hitoshi/tgshop/internal/middleware"
	"github.com/hitoshi/tgshop/internal/order"
	"github.com/hitoshi/tgshop/internal/repository"
	"github.com/hitoshi/tgshop/internal/security"
	"github.com/hitoshi/tgshop/internal/telegram"
	"github.com/hitoshi/tgshop/internal/woocommerce"
	"github.com/hitoshi/tgshop/internal/worker/background"
	"github.com/hitoshi/tgshop/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const (
	telegramTimeout  = 10 * time.Second
	shutdownTimeout  = 30 * time.Second
	dbConnectTimeout = 5 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数（と.envファイル）からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再初期化する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("woocommerce_url", cfg.WooCommerceURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// server はAPIサーバーの依存関係と、終了時に解放すべき資源を保持する。
type server struct {
	handler  http.Handler
	runner   *background.Runner
	limiter  *middleware.RateLimiter
	wcHTTP   *http.Client
	tgHTTP   *http.Client
	redis    *redis.Client
	registry *prometheus.Registry
}

// newServer は全依存関係をワイヤリングしてHTTPハンドラーを構築する。
// 外部への接続はこの中では確認しない（Redisを除く）。
func newServer(ctx context.Context, cfg *config.Config, db *sql.DB, log *slog.Logger) (*server, error) {
	s := &server{}

	// 1. メトリクス
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(s.registry)

	// 2. バックグラウンドタスク（修復書き込み・カート保存・通知・分析イベント）
	s.runner = background.NewRunner(log, cfg.BackgroundTaskTimeout, collector)

	// 3. WooCommerceクライアント（プール済みの接続を使い回す）
	s.wcHTTP = &http.Client{
		Timeout: cfg.WooCommerceTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 20,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
	wc := woocommerce.NewClient(s.wcHTTP, log, woocommerce.Config{
		BaseURL:        cfg.WooCommerceURL,
		ConsumerKey:    cfg.WooCommerceKey,
		ConsumerSecret: cfg.WooCommerceSecret,
		APIVersion:     cfg.WooCommerceAPIVersion,
		Timeout:        cfg.WooCommerceTimeout,
		RateLimit:      cfg.WooCommerceRateLimit,
		MaxRetries:     cfg.WooCommerceMaxRetries,
	}, collector)

	// 4. 顧客IDキャッシュ（REDIS_URL設定時のみ）
	var idCache customer.IDCache
	if cfg.RedisURL != "" {
		rdb, err := database.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("Redisに接続できないため顧客IDキャッシュを使用しません", slog.String("error", err.Error()))
		} else {
			s.redis = rdb
			idCache = customer.NewRedisIDCache(rdb, cfg.CustomerCacheTTL)
		}
	}

	// 5. 認証と顧客解決
	verifier := auth.NewVerifier(cfg.TelegramBotToken, cfg.InitDataMaxAge)
	log.Info("initData検証を設定しました", slog.Duration("max_age", verifier.MaxAge()))
	resolver := customer.NewResolver(wc, s.runner, log, customer.ResolverConfig{
		Cache:    idCache,
		Recorder: collector,
	})

	// 6. Telegram通知（宛先は公開httpsのみに制限する）
	guard := security.NewOutboundGuard()
	if err := guard.ValidatePublicURL(cfg.TelegramAPIURL); err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_API_URL: %w", err)
	}
	s.tgHTTP = guard.NewSafeClient(telegramTimeout)
	tgClient := telegram.NewClient(s.tgHTTP, cfg.TelegramAPIURL, cfg.TelegramBotToken, log)
	sanitizer := security.NewContentSanitizer()
	notifier := telegram.NewNotifier(tgClient, sanitizer, telegram.NotifierConfig{
		ManagerIDs: cfg.TelegramManagerIDs,
		ShopURL:    cfg.WooCommerceURL,
		MiniAppURL: cfg.MiniAppURL,
	}, log)

	// 7. ドメインサービス
	reconciler := cart.NewReconciler(wc, wc, s.runner, log, collector)
	cartService := cart.NewService(wc, reconciler)
	profileService := customer.NewProfileService(wc)
	catalogService := catalog.NewService(wc, sanitizer, log)
	orderService := order.NewService(wc, notifier, s.runner, log)
	analyticsService := analytics.NewService(repository.NewPostgresAnalyticsRepo(db), s.runner, log)

	// 8. ルーター
	var health handler.HealthChecker
	if db != nil {
		health = db
	}
	s.limiter = middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitOrder),
	)
	s.handler = handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       s.limiter,
		Verifier:          verifier,
		Resolver:          resolver,
		AuthRecorder:      collector,
		AdminAPIKey:       cfg.AdminAPIKey,
		HealthChecker:     health,
		MetricsHandler:    metrics.Handler(s.registry),
		CartService:       cartService,
		ProfileService:    profileService,
		OrderService:      orderService,
		CatalogService:    catalogService,
		AnalyticsService:  analyticsService,
	})

	if cfg.AdminAPIKey == "" {
		log.Warn("ADMIN_API_KEY が未設定のため管理APIは503を返します")
	}

	return s, nil
}

// close はバックグラウンドタスクの完了を待ってから資源を解放する。
func (s *server) close(ctx context.Context) error {
	var errs []error
	if err := s.runner.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("background tasks did not finish: %w", err))
	}
	s.limiter.Stop()
	s.wcHTTP.CloseIdleConnections()
	s.tgHTTP.CloseIdleConnections()
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// runServe はAPIサーバーモードで起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行い、
// 実行中のバックグラウンドタスクの完了を待つ。
func runServe(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	srv, err := newServer(context.Background(), cfg, db, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-stop:
		slog.Info("shutting down API server...")
	case err := <-serveErr:
		if err != nil {
			srv.close(context.Background())
			return fmt.Errorf("server listen error: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := srv.close(ctx); err != nil {
		return fmt.Errorf("shutdown incomplete: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 分析イベントの保持期間クリーンアップを日次で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	job := cleanup.NewEventCleanupJob(db, slog.Default(), cfg.AnalyticsRetentionDays)

	slog.Info("worker starting",
		slog.Int("retention_days", job.RetentionDays),
		slog.Duration("interval", job.Interval),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	job.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	result, err := database.ApplyMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("from_version", uint64(result.From)),
		slog.Uint64("to_version", uint64(result.To)),
		slog.Bool("applied", result.Applied()),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
