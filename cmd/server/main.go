package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/rl1809/usdt-pay/internal/adapter/handler"
	"github.com/rl1809/usdt-pay/internal/adapter/ledger"
	"github.com/rl1809/usdt-pay/internal/adapter/storage"
	"github.com/rl1809/usdt-pay/internal/core/service"
	"github.com/rl1809/usdt-pay/internal/port"
)

type Config struct {
	MySQL struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		DBName   string `mapstructure:"dbname"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"redis"`
	Tron struct {
		BaseURL        string `mapstructure:"base_url"`
		APIKey         string `mapstructure:"api_key"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"tron"`
	App struct {
		Port                int    `mapstructure:"port"`
		PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"`
		OrderWindowMinutes  int    `mapstructure:"order_window_minutes"`
		WalletPool          string `mapstructure:"wallet_pool"`
	} `mapstructure:"app"`
}

func loadConfig() (Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetDefault("mysql.host", "localhost")
	viper.SetDefault("mysql.port", 3306)
	viper.SetDefault("mysql.user", "root")
	viper.SetDefault("mysql.password", "root")
	viper.SetDefault("mysql.dbname", "usdtpay")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("tron.base_url", "https://api.trongrid.io")
	viper.SetDefault("tron.timeout_seconds", 10)
	viper.SetDefault("app.port", 8080)
	viper.SetDefault("app.poll_interval_seconds", 10)
	viper.SetDefault("app.order_window_minutes", 20)
	viper.SetDefault("app.wallet_pool", "mysql")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		log.Println("no config file found, using defaults")
	}
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DBName)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	log.Println("connected to mysql")

	mysqlAdapter := storage.NewMySQLAdapter(db)

	// Pick the wallet pool. MySQL is the default; the Redis pool claims via
	// a Lua script and is seeded from the provisioned wallets at boot.
	var (
		pool      port.WalletPool
		finalizer port.Finalizer
		rdb       *redis.Client
	)
	switch cfg.App.WalletPool {
	case "redis":
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		log.Println("connected to redis")

		redisAdapter := storage.NewRedisAdapter(rdb)
		wallets, err := mysqlAdapter.FetchAll(ctx)
		if err != nil {
			log.Fatalf("failed to load wallets: %v", err)
		}
		if err := redisAdapter.Seed(ctx, wallets); err != nil {
			log.Fatalf("failed to seed wallet pool: %v", err)
		}
		log.Printf("seeded redis wallet pool with %d wallets", len(wallets))

		pool = redisAdapter
		finalizer = service.NewCompositeFinalizer(mysqlAdapter, redisAdapter)
	case "mysql":
		pool = mysqlAdapter
		finalizer = mysqlAdapter
	default:
		log.Fatalf("unknown wallet_pool %q", cfg.App.WalletPool)
	}

	// Initialize ledger client and core services
	tronClient := ledger.NewTronClient(cfg.Tron.BaseURL, cfg.Tron.APIKey,
		time.Duration(cfg.Tron.TimeoutSeconds)*time.Second)

	orderService := service.NewOrderService(pool, mysqlAdapter,
		time.Duration(cfg.App.OrderWindowMinutes)*time.Minute)
	reconciler := service.NewReconciler(mysqlAdapter, tronClient, finalizer,
		time.Duration(cfg.App.PollIntervalSeconds)*time.Second)

	go reconciler.Run(ctx)

	// Initialize HTTP server
	router := gin.Default()
	httpHandler := handler.NewHTTPHandler(orderService, pool)
	httpHandler.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.Printf("HTTP server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Println("HTTP server stopped")

	cancel()

	if rdb != nil {
		rdb.Close()
	}
	db.Close()
	log.Println("connections closed")
}
