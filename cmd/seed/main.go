// Command seed loads development fixtures (users, profiles, proxies,
// accounts) from a YAML file into the database.
//
// Usage: seed [-file seed.yaml]
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/commentflow/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/commentflow/internal/config"
	"github.com/fairyhunter13/commentflow/internal/domain"
)

type seedFile struct {
	Users []struct {
		Email    string `yaml:"email"`
		Timezone string `yaml:"timezone"`
	} `yaml:"users"`
	Profiles []struct {
		User         string `yaml:"user"` // email
		Name         string `yaml:"name"`
		ClientID     string `yaml:"client_id"`
		ClientSecret string `yaml:"client_secret"`
		APIKey       string `yaml:"api_key"`
		LimitQuota   int64  `yaml:"limit_quota"`
		Active       bool   `yaml:"active"`
	} `yaml:"profiles"`
	Proxies []struct {
		User     string `yaml:"user"`
		Name     string `yaml:"name"` // referenced by accounts
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Protocol string `yaml:"protocol"`
	} `yaml:"proxies"`
	Accounts []struct {
		User         string `yaml:"user"`
		Profile      string `yaml:"profile"` // profile name
		Proxy        string `yaml:"proxy"`   // proxy name, optional
		Email        string `yaml:"email"`
		RefreshToken string `yaml:"refresh_token"`
	} `yaml:"accounts"`
}

func main() {
	file := flag.String("file", "seed.yaml", "fixture file")
	flag.Parse()

	// .env is optional; real environments configure via the process env.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		slog.Error("fixture read failed", slog.String("file", *file), slog.Any("error", err))
		os.Exit(1)
	}
	var fixtures seedFile
	if err := yaml.Unmarshal(raw, &fixtures); err != nil {
		slog.Error("fixture parse failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	profileRepo := postgres.NewProfileRepo(pool)
	proxyRepo := postgres.NewProxyRepo(pool)
	accountRepo := postgres.NewAccountRepo(pool)

	userIDs := map[string]string{}
	for _, u := range fixtures.Users {
		tz := u.Timezone
		if tz == "" {
			tz = "UTC"
		}
		id := uuid.NewString()
		_, err := pool.Exec(ctx,
			`INSERT INTO users (id, email, timezone) VALUES ($1, $2, $3)
			 ON CONFLICT (email) DO UPDATE SET timezone = EXCLUDED.timezone`,
			id, u.Email, tz)
		if err != nil {
			slog.Error("user insert failed", slog.String("email", u.Email), slog.Any("error", err))
			os.Exit(1)
		}
		// Re-read the id in case the row already existed.
		if err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, u.Email).Scan(&id); err != nil {
			slog.Error("user lookup failed", slog.String("email", u.Email), slog.Any("error", err))
			os.Exit(1)
		}
		userIDs[u.Email] = id
		slog.Info("seeded user", slog.String("email", u.Email))
	}

	profileIDs := map[string]string{}
	for _, p := range fixtures.Profiles {
		id, err := profileRepo.Create(ctx, domain.APIProfile{
			UserID:       userIDs[p.User],
			Name:         p.Name,
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			APIKey:       p.APIKey,
			LimitQuota:   p.LimitQuota,
			Status:       domain.ProfileNotExceeded,
		})
		if err != nil {
			slog.Error("profile insert failed", slog.String("name", p.Name), slog.Any("error", err))
			os.Exit(1)
		}
		if p.Active {
			if err := profileRepo.Activate(ctx, id); err != nil {
				slog.Error("profile activate failed", slog.String("name", p.Name), slog.Any("error", err))
				os.Exit(1)
			}
		}
		profileIDs[p.Name] = id
		slog.Info("seeded profile", slog.String("name", p.Name))
	}

	proxyIDs := map[string]string{}
	for _, px := range fixtures.Proxies {
		proto := domain.ProxyProtocol(px.Protocol)
		if proto == "" {
			proto = domain.ProxyHTTP
		}
		id, err := proxyRepo.Create(ctx, domain.Proxy{
			UserID:   userIDs[px.User],
			Host:     px.Host,
			Port:     px.Port,
			Username: px.Username,
			Password: px.Password,
			Protocol: proto,
			Status:   domain.ProxyInactive,
		})
		if err != nil {
			slog.Error("proxy insert failed", slog.String("name", px.Name), slog.Any("error", err))
			os.Exit(1)
		}
		proxyIDs[px.Name] = id
		slog.Info("seeded proxy", slog.String("name", px.Name))
	}

	for _, a := range fixtures.Accounts {
		var proxyID *string
		if a.Proxy != "" {
			if id, ok := proxyIDs[a.Proxy]; ok {
				proxyID = &id
			}
		}
		_, err := accountRepo.Create(ctx, domain.Account{
			UserID:       userIDs[a.User],
			ProfileID:    profileIDs[a.Profile],
			ProxyID:      proxyID,
			Email:        a.Email,
			RefreshToken: a.RefreshToken,
			Status:       domain.AccountInactive,
		})
		if err != nil {
			slog.Error("account insert failed", slog.String("email", a.Email), slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("seeded account", slog.String("email", a.Email))
	}

	slog.Info("seed complete",
		slog.Int("users", len(fixtures.Users)),
		slog.Int("profiles", len(fixtures.Profiles)),
		slog.Int("proxies", len(fixtures.Proxies)),
		slog.Int("accounts", len(fixtures.Accounts)))
}
