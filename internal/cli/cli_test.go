package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/moneymapper/authcore/internal/app"
	"github.com/moneymapper/authcore/internal/config"
	"github.com/moneymapper/authcore/internal/database/dbtest"
	"github.com/moneymapper/authcore/internal/models"
	"github.com/moneymapper/authcore/internal/ratelimit"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type cliEnv struct {
	db    *gorm.DB
	redis *miniredis.Miniredis
}

func setupCLI(t *testing.T) *cliEnv {
	t.Helper()

	env := &cliEnv{db: dbtest.Open(t), redis: miniredis.RunT(t)}
	original := openApp
	openApp = func(ctx context.Context, cfg *config.Config) (*app.App, error) {
		cfg.JWT.Secret = "cli-test-secret"
		cfg.Redis.Addr = env.redis.Addr()
		cfg.Audit.ArchiveOnPurge = false
		return app.NewWithDB(ctx, cfg, env.db)
	}
	t.Cleanup(func() { openApp = original })
	return env
}

// run executes authctl with args. Flag variables outlive a single
// execution, so they are reset to their defaults first.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	flagJSON = false
	flagLimit = 20
	flagSince = 0
	flagIP = ""
	flagReason = string(models.ReasonAdminRevoked)
	flagActor = ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := Execute(context.Background())
	return out.String(), err
}

func (env *cliEnv) seedUser(t *testing.T, username string) {
	t.Helper()
	user := &models.User{Username: username, PasswordHash: "x", Enabled: true, Roles: []string{models.RoleUser}}
	if err := env.db.Create(user).Error; err != nil {
		t.Fatalf("seed user failed: %v", err)
	}
}

func TestJobsCommands(t *testing.T) {
	setupCLI(t)

	out, err := run(t, "jobs", "list", "--json")
	if err != nil {
		t.Fatalf("jobs list failed: %v", err)
	}
	var names []string
	if err := json.Unmarshal([]byte(out), &names); err != nil {
		t.Fatalf("expected JSON list, got %q: %v", out, err)
	}
	if len(names) != 5 {
		t.Fatalf("expected 5 jobs, got %v", names)
	}

	out, err = run(t, "jobs", "run", "all")
	if err != nil {
		t.Fatalf("jobs run all failed: %v\n%s", err, out)
	}
	if strings.Count(out, ": ok") != 5 {
		t.Fatalf("expected every job to succeed:\n%s", out)
	}

	out, err = run(t, "jobs", "run", "not_a_job")
	if err == nil {
		t.Fatal("expected an unknown job to fail")
	}
	if !strings.Contains(out, "not_a_job: failed") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSessionsRevoke(t *testing.T) {
	env := setupCLI(t)
	env.seedUser(t, "alice")

	if _, err := run(t, "sessions", "revoke", "alice", "--reason", "logout"); err == nil {
		t.Fatal("expected a user-facing reason to be rejected")
	}

	out, err := run(t, "sessions", "revoke", "alice", "--reason", "account_compromised", "--actor", "oncall")
	if err != nil {
		t.Fatalf("revoke failed: %v", err)
	}
	if !strings.Contains(out, "ACCOUNT_COMPROMISED") {
		t.Fatalf("unexpected output %q", out)
	}

	var cutoff models.UserTokenCutoff
	if err := env.db.Where("username = ?", "alice").First(&cutoff).Error; err != nil {
		t.Fatalf("expected a cutoff row: %v", err)
	}
	if cutoff.Reason != models.ReasonAccountCompromised {
		t.Fatalf("unexpected cutoff reason %s", cutoff.Reason)
	}

	out, err = run(t, "audit", "history", "alice")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "SUSPICIOUS_ACTIVITY") || !strings.Contains(out, "oncall") {
		t.Fatalf("expected the revocation in history:\n%s", out)
	}

	if _, err := run(t, "sessions", "revoke", "ghost"); err == nil {
		t.Fatal("expected an unknown user to fail")
	}
}

func TestAuditCheck(t *testing.T) {
	env := setupCLI(t)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		event := models.SecurityAuditEvent{
			Username:  "bob",
			Action:    models.ActionLoginFailure,
			Status:    models.StatusFailure,
			IPAddress: "203.0.113.7",
			Timestamp: now.Add(-time.Duration(i+1) * time.Minute),
		}
		if err := env.db.Create(&event).Error; err != nil {
			t.Fatalf("seed event failed: %v", err)
		}
	}

	out, err := run(t, "audit", "check", "bob", "--ip", "203.0.113.7", "--json")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	var report suspicionReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("expected JSON report, got %q: %v", out, err)
	}
	if !report.Suspicious || report.FailedLogins != 5 {
		t.Fatalf("unexpected report %+v", report)
	}

	out, err = run(t, "audit", "history", "bob", "--since", "150s", "--json")
	if err != nil {
		t.Fatalf("history --since failed: %v", err)
	}
	var window []models.SecurityAuditEvent
	if err := json.Unmarshal([]byte(out), &window); err != nil {
		t.Fatalf("expected JSON events, got %q: %v", out, err)
	}
	if len(window) != 2 {
		t.Fatalf("expected the 2 events inside the window, got %d", len(window))
	}
	if !window[0].Timestamp.Before(window[1].Timestamp) {
		t.Fatalf("expected oldest first, got %v then %v", window[0].Timestamp, window[1].Timestamp)
	}

	out, err = run(t, "audit", "check", "carol")
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !strings.Contains(out, "false") {
		t.Fatalf("expected a clean report:\n%s", out)
	}
}

func TestRateLimitCommands(t *testing.T) {
	env := setupCLI(t)

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: env.redis.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewLimiter(ratelimit.Options{Primary: ratelimit.NewRedisStore(client)})
	for i := 0; i < 5; i++ {
		if _, err := limiter.Attempt(ctx, ratelimit.ActionLogin, "alice"); err != nil {
			t.Fatalf("attempt failed: %v", err)
		}
	}

	out, err := run(t, "ratelimit", "status", "login", "alice", "--json")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	var status limitStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("expected JSON status, got %q: %v", out, err)
	}
	if status.Allowed || status.Remaining != 0 || status.Limit != 5 || status.ResetsIn == "-" {
		t.Fatalf("expected a locked-out identifier, got %+v", status)
	}

	if _, err := run(t, "ratelimit", "clear", "login", "alice"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}

	out, err = run(t, "ratelimit", "status", "login", "alice")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "5 of 5") {
		t.Fatalf("expected a full allowance after clear:\n%s", out)
	}

	if _, err := run(t, "ratelimit", "status", "teleport", "alice"); err == nil {
		t.Fatal("expected an unknown action to fail")
	}
}
