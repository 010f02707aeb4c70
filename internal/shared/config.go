package shared

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"placemap/internal/domain"
)

type Config struct {
	AppEnv      string
	LogLevel    string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	// MigrationsDir, when set, makes the API apply schema migrations on start.
	MigrationsDir string

	FoursquareBase string
	FoursquareKey  string
	CMSBase        string
	CMSKey         string

	Workers      int
	ImportRPS    int
	Seeds        []domain.Seed
	CMSPageSize  int
	CacheTTL     time.Duration
	IndexRefresh time.Duration
	LoadTimeout  time.Duration
	LongPress    time.Duration
}

// DefaultSeeds are used when IMPORT_SEEDS is unset.
var DefaultSeeds = []domain.Seed{
	{Lat: 40.7128, Lng: -74.0060, RadiusM: 2000},
	{Lat: 48.8566, Lng: 2.3522, RadiusM: 2000},
	{Lat: 51.5074, Lng: -0.1278, RadiusM: 2000},
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("not an integer, using default")
		}
		return def
	}
	c := Config{
		AppEnv:         env("APP_ENV", "prod"),
		LogLevel:       env("LOG_LEVEL", "info"),
		HTTPAddr:       env("HTTP_ADDR", ":8080"),
		MetricsAddr:    env("METRICS_ADDR", ":9100"),
		MySQLDSN:       env("MYSQL_DSN", "root:root@tcp(localhost:3306)/placemap?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		MigrationsDir:  os.Getenv("MIGRATIONS_DIR"),
		RedisAddr:      env("REDIS_ADDR", "localhost:6379"),
		RedisPass:      env("REDIS_PASSWORD", ""),
		RedisDB:        atoi("REDIS_DB", 0),
		FoursquareBase: env("FOURSQUARE_BASE_URL", "https://api.foursquare.com/v3/places"),
		FoursquareKey:  env("FOURSQUARE_API_KEY", ""),
		CMSBase:        env("CMS_BASE_URL", ""),
		CMSKey:         env("CMS_API_KEY", ""),
		Workers:        atoi("INGEST_WORKERS", 4),
		ImportRPS:      atoi("IMPORT_RPS", 5),
		CMSPageSize:    atoi("CMS_PAGE_SIZE", 100),
		CacheTTL:       time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		IndexRefresh:   time.Duration(atoi("INDEX_REFRESH_SECONDS", 60)) * time.Second,
		LoadTimeout:    time.Duration(atoi("MAP_LOAD_TIMEOUT_SECONDS", 15)) * time.Second,
		LongPress:      time.Duration(atoi("LONG_PRESS_MS", 500)) * time.Millisecond,
		Seeds:          DefaultSeeds,
	}
	if raw := os.Getenv("IMPORT_SEEDS"); raw != "" {
		seeds, err := ParseSeeds(raw)
		if err != nil {
			log.Warn().Err(err).Msg("IMPORT_SEEDS invalid, using defaults")
		} else {
			c.Seeds = seeds
		}
	}
	if c.FoursquareKey == "" {
		log.Warn().Msg("FOURSQUARE_API_KEY is empty")
	}
	return c
}

// ParseSeeds reads "lat,lng,radius[,query];..." into seeds.
func ParseSeeds(s string) ([]domain.Seed, error) {
	var out []domain.Seed
	for i, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f := strings.SplitN(part, ",", 4)
		if len(f) < 3 {
			return nil, fmt.Errorf("seed %d: want lat,lng,radius[,query]", i+1)
		}
		lat, err1 := strconv.ParseFloat(strings.TrimSpace(f[0]), 64)
		lng, err2 := strconv.ParseFloat(strings.TrimSpace(f[1]), 64)
		radius, err3 := strconv.Atoi(strings.TrimSpace(f[2]))
		if err1 != nil || err2 != nil || err3 != nil {
			return nil, fmt.Errorf("seed %d: bad number", i+1)
		}
		if lat < -90 || lat > 90 || lng < -180 || lng > 180 || radius <= 0 {
			return nil, fmt.Errorf("seed %d: out of range", i+1)
		}
		seed := domain.Seed{Lat: lat, Lng: lng, RadiusM: radius}
		if len(f) == 4 {
			seed.Query = strings.TrimSpace(f[3])
		}
		out = append(out, seed)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no seeds")
	}
	return out, nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
