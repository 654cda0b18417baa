package main

import (
	"database/sql"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	alarmapp "metrics-cloud/internal/alarms/application"
	alarmrepo "metrics-cloud/internal/alarms/infrastructure/postgres"
	alarmhttp "metrics-cloud/internal/alarms/interfaces/http"
	apihttp "metrics-cloud/internal/api/http"
	"metrics-cloud/internal/audit"
	"metrics-cloud/internal/auth"
	"metrics-cloud/internal/eventing"
	"metrics-cloud/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	alarmRepository, err := alarmrepo.NewAlarmRepository(db)
	if err != nil {
		logger.Fatalf("alarm repository error: %v", err)
	}
	historyRepository, err := alarmrepo.NewStateHistoryRepository(db)
	if err != nil {
		logger.Fatalf("history repository error: %v", err)
	}

	var bus alarmapp.EventBus
	if brokers := eventing.ParseBrokers(cfg.KafkaBrokers); len(brokers) > 0 {
		kafkaBus, err := eventing.NewKafkaBus(brokers, cfg.KafkaTopic)
		if err != nil {
			logger.Fatalf("kafka bus error: %v", err)
		}
		defer kafkaBus.Close()
		bus = kafkaBus
	} else {
		logger.Printf("no kafka brokers configured, alarm events stay in-process")
		bus = eventing.NewInMemoryBus()
	}

	emitter, err := alarmapp.NewEmitter(bus)
	if err != nil {
		logger.Fatalf("event emitter error: %v", err)
	}
	alarmService, err := alarmapp.NewService(alarmRepository, historyRepository, emitter, logger)
	if err != nil {
		logger.Fatalf("alarm service error: %v", err)
	}
	alarmHandler, err := alarmhttp.NewHandler(alarmService, auditRepo, logger)
	if err != nil {
		logger.Fatalf("alarm handler error: %v", err)
	}

	authorizer, err := auth.NewAuthorizer(cfg.AuthorizedRoles)
	if err != nil {
		logger.Fatalf("authorizer error: %v", err)
	}
	policy := auth.NewDefaultPolicy([]string{"/", "/healthz", "/metrics", "/v2.0"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy, authorizer)

	mux := http.NewServeMux()
	mux.Handle("/v2.0/alarms", alarmHandler)
	mux.Handle("/v2.0/alarms/", alarmHandler)
	mux.Handle("/v2.0", apihttp.NewVersionHandler())
	mux.Handle("/", apihttp.NewVersionHandler())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL     string   `yaml:"database_url"`
	HTTPAddr        string   `yaml:"http_addr"`
	JWTSecret       string   `yaml:"jwt_secret"`
	AuthorizedRoles []string `yaml:"authorized_roles"`
	KafkaBrokers    string   `yaml:"kafka_brokers"`
	KafkaTopic      string   `yaml:"kafka_topic"`
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:     getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:       getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		AuthorizedRoles: splitCSV(getenvDefault("AUTHORIZED_ROLES", "monitoring-user,admin")),
		KafkaBrokers:    getenvDefault("KAFKA_BROKERS", ""),
		KafkaTopic:      getenvDefault("KAFKA_TOPIC", "alarm-state-transitions"),
	}

	if path := os.Getenv("ALARM_API_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("config read error: %v", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("config parse error: %v", err)
		}
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	if len(cfg.AuthorizedRoles) == 0 {
		log.Fatal("AUTHORIZED_ROLES is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
