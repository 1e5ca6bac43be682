package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	IrisBaseURL string
	IrisWSURL   string

	BotPrefix string

	RedisURL    string
	DatabaseURL string

	AllowedRooms []string

	ChallengeTimeout   time.Duration
	EndConfirmTimeout  time.Duration
	AFKTimeout         time.Duration
	AFKSweepInterval   time.Duration
	LeaderboardPage    int
	AllowUnilateralEnd bool
	AbandonIsLoss      bool

	MsgOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ChallengeTimeout:  60 * time.Second,
		EndConfirmTimeout: 30 * time.Second,
		AFKTimeout:        180 * time.Second,
		AFKSweepInterval:  30 * time.Second,
		LeaderboardPage:   10,
	}

	cfg.IrisBaseURL = strings.TrimSpace(os.Getenv("IRIS_BASE_URL"))
	cfg.IrisWSURL = strings.TrimSpace(os.Getenv("IRIS_WS_URL"))
	cfg.BotPrefix = strings.TrimSpace(os.Getenv("BOT_PREFIX"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ROOMS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedRooms = append(cfg.AllowedRooms, s)
			}
		}
	}

	cfg.ChallengeTimeout = secondsEnv("CHALLENGE_TIMEOUT_SEC", cfg.ChallengeTimeout)
	cfg.EndConfirmTimeout = secondsEnv("END_CONFIRM_TIMEOUT_SEC", cfg.EndConfirmTimeout)
	cfg.AFKTimeout = secondsEnv("AFK_TIMEOUT_SEC", cfg.AFKTimeout)
	cfg.AFKSweepInterval = secondsEnv("AFK_SWEEP_SEC", cfg.AFKSweepInterval)

	if v := strings.TrimSpace(os.Getenv("LEADERBOARD_PAGE_SIZE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LeaderboardPage = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("ALLOW_UNILATERAL_END")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowUnilateralEnd = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("ABANDON_COUNTS_AS_LOSS")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AbandonIsLoss = b
		}
	}

	if cfg.IrisBaseURL == "" {
		return nil, errors.New("IRIS_BASE_URL is required")
	}
	if cfg.IrisWSURL == "" {
		return nil, errors.New("IRIS_WS_URL is required")
	}
	if cfg.BotPrefix == "" {
		return nil, errors.New("BOT_PREFIX is required")
	}

	return cfg, nil
}

func secondsEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}
