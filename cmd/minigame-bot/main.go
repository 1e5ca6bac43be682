package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/Minigame-KakaoTalk-bot/internal/arena"
	appcfg "github.com/park285/Minigame-KakaoTalk-bot/internal/config"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/gamekit"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/games/matching"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/games/rps"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/games/tictactoe"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/msgcat"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Minigame-KakaoTalk-bot/internal/stats"
)

func main() {
	_ = godotenv.Load()

	if err := obslog.InitFromEnv(); err != nil {
		panic(err)
	}
	log := obslog.L()
	defer func() { _ = log.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatal("config_error", zap.Error(err))
	}

	cat, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		log.Fatal("messages_error", zap.Error(err))
	}

	reg := gamekit.NewRegistry()
	for _, rules := range []gamekit.Rules{matching.New(), tictactoe.New(), rps.New()} {
		if err := reg.Register(rules); err != nil {
			log.Fatal("registry_error", zap.Error(err))
		}
	}

	// Optional redis: session snapshots and the duplicate-record guard.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		ropts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal("redis_url_error", zap.Error(err))
		}
		rdb = redis.NewClient(ropts)
		pctx, pcancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			log.Warn("redis_unreachable", zap.Error(err))
		}
		pcancel()
	}

	// Records: postgres when configured, in-memory otherwise.
	var repo stats.Repository
	if cfg.DatabaseURL != "" {
		sqlRepo, err := stats.NewSQLRepository(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("database_error", zap.Error(err))
		}
		repo = sqlRepo
	} else {
		log.Warn("database_not_configured", zap.String("fallback", "in-memory records"))
		repo = stats.NewMemRepository()
	}
	svcOpts := []stats.ServiceOption{
		stats.WithAbandonAsLoss(cfg.AbandonIsLoss),
		stats.WithPageSize(cfg.LeaderboardPage),
	}
	if rdb != nil {
		svcOpts = append(svcOpts, stats.WithGuard(rdb))
	}
	statsSvc := stats.NewService(repo, svcOpts...)

	client := irisfast.NewClient(cfg.IrisBaseURL)
	ws := irisfast.NewWebSocket(cfg.IrisWSURL, 10, time.Second)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		log.Info("ws_state", zap.String("state", string(state)))
	})
	egress := irisfast.NewEgress("auto", false, client, ws, log)

	sink := newChatSink(egress, cat, reg, cfg.BotPrefix, cfg.EndConfirmTimeout)

	mgrOpts := []arena.Option{
		arena.WithSink(sink),
		arena.WithRecorder(statsSvc),
	}
	if rdb != nil {
		mgrOpts = append(mgrOpts, arena.WithSnapshots(arena.NewSnapshots(rdb)))
	}
	mgr := arena.NewManager(arena.Config{
		ChallengeTimeout:   cfg.ChallengeTimeout,
		EndConfirmTimeout:  cfg.EndConfirmTimeout,
		AFKTimeout:         cfg.AFKTimeout,
		SweepInterval:      cfg.AFKSweepInterval,
		AllowUnilateralEnd: cfg.AllowUnilateralEnd,
	}, reg, mgrOpts...)
	mgr.Start()

	b := &bot{cfg: cfg, mgr: mgr, reg: reg, stats: statsSvc, cat: cat, egress: egress}

	ws.OnMessage(func(msg *irisfast.Message) {
		if msg == nil || msg.Msg == "" {
			return
		}
		if msg.JSON != nil && msg.JSON.IsMine {
			return
		}
		if len(cfg.AllowedRooms) > 0 && !roomAllowed(cfg.AllowedRooms, msg.Room) {
			return
		}
		if !strings.HasPrefix(strings.TrimSpace(msg.Msg), cfg.BotPrefix) {
			return
		}
		// keep the WS read loop free
		go b.handleMessage(msg)
	})

	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ws.Connect(cctx); err != nil {
		cancel()
		log.Fatal("ws_connect_error", zap.Error(err))
	}
	cancel()
	log.Info("bot_started", zap.String("prefix", cfg.BotPrefix), zap.Int("games", len(reg.List())))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting_down")

	mgr.Close()
	_ = ws.Close(context.Background())
	_ = repo.Close()
	if rdb != nil {
		_ = rdb.Close()
	}
}

func roomAllowed(allowed []string, room string) bool {
	for _, r := range allowed {
		if r == room {
			return true
		}
	}
	return false
}
