// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parley Contributors

//go:build integration

package auth

import (
	"context"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/parleyhq/parley/internal/auth"
	authpg "github.com/parleyhq/parley/internal/auth/postgres"
	"github.com/parleyhq/parley/internal/chat"
	chatpg "github.com/parleyhq/parley/internal/chat/postgres"
	"github.com/parleyhq/parley/internal/store"
)

// recordingSink captures notifications so specs can pull tokens out of them.
type recordingSink struct {
	mu     sync.Mutex
	bodies []string
}

func (s *recordingSink) Send(_ context.Context, n auth.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies = append(s.bodies, n.Body)
	return nil
}

func (s *recordingSink) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bodies) == 0 {
		return ""
	}
	return s.bodies[len(s.bodies)-1]
}

// testEnv holds the containerized database and the service stack under test.
type testEnv struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container testcontainers.Container
	pool      *pgxpool.Pool

	users    *authpg.UserRepository
	convs    *chatpg.ConversationRepository
	sink     *recordingSink
	manager  *auth.SessionManager
	issuer   *auth.TokenIssuer
	svc      *auth.Service
	reset    *auth.PasswordResetService
	elev     *auth.ElevationService
}

func setupTestEnv() (*testEnv, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	env := &testEnv{ctx: ctx, cancel: cancel}

	container, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("parley_test"),
		postgres.WithUsername("parley"),
		postgres.WithPassword("parley"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		cancel()
		return nil, err
	}
	env.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		env.cleanup()
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		env.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		env.cleanup()
		return nil, err
	}
	_ = migrator.Close()

	env.pool, err = store.Connect(ctx, connStr)
	if err != nil {
		env.cleanup()
		return nil, err
	}

	logger := slog.Default()
	env.users = authpg.NewUserRepository(env.pool)
	sessions := authpg.NewSessionRepository(env.pool)
	tokens := authpg.NewTokenRepository(env.pool)
	elevations := authpg.NewElevationRepository(env.pool)
	env.convs = chatpg.NewConversationRepository(env.pool)
	env.sink = &recordingSink{}

	if env.manager, err = auth.NewSessionManager(env.users, sessions, logger); err != nil {
		env.cleanup()
		return nil, err
	}
	if env.issuer, err = auth.NewTokenIssuer(tokens); err != nil {
		env.cleanup()
		return nil, err
	}
	if env.svc, err = auth.NewService(env.users, env.manager, env.issuer, auth.NewArgon2idHasher(), logger); err != nil {
		env.cleanup()
		return nil, err
	}
	if env.reset, err = auth.NewPasswordResetService(
		env.users, env.issuer, env.manager, auth.NewArgon2idHasher(),
		env.sink, "https://parley.test", logger,
	); err != nil {
		env.cleanup()
		return nil, err
	}
	if env.elev, err = auth.NewElevationService(
		env.users, elevations, env.sink, "ops@parley.test", "https://parley.test", logger,
	); err != nil {
		env.cleanup()
		return nil, err
	}

	return env, nil
}

func (env *testEnv) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if env.pool != nil {
		env.pool.Close()
	}
	if env.container != nil {
		_ = env.container.Terminate(ctx)
	}
	env.cancel()
}

var (
	resetLinkRe   = regexp.MustCompile(`token=([0-9a-f]{64})`)
	approveLinkRe = regexp.MustCompile(`/admin/requests/approve/([0-9a-f]{64})`)
)

var _ = Describe("Identity core against PostgreSQL", Ordered, func() {
	var env *testEnv

	BeforeAll(func() {
		var err error
		env, err = setupTestEnv()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterAll(func() {
		env.cleanup()
	})

	It("registers, logs in, and revokes sessions", func() {
		user, _, token, err := env.svc.Register(env.ctx, "alice", "alice@example.com", "sw0rdf1sh!", "suite", "127.0.0.1")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Username).To(Equal("alice"))

		got, _, err := env.manager.Validate(env.ctx, token)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.ID).To(Equal(user.ID))

		// Duplicate identities are rejected case-insensitively.
		_, _, _, err = env.svc.Register(env.ctx, "ALICE", "", "sw0rdf1sh!", "", "")
		Expect(err).To(MatchError(auth.ErrDuplicate))

		Expect(env.svc.Logout(env.ctx, token)).To(Succeed())
		_, _, err = env.manager.Validate(env.ctx, token)
		Expect(err).To(HaveOccurred())
	})

	It("runs the password reset flow end to end", func() {
		_, _, liveToken, err := env.svc.Login(env.ctx, "alice", "sw0rdf1sh!", "", "")
		Expect(err).NotTo(HaveOccurred())

		Expect(env.reset.RequestReset(env.ctx, "alice@example.com")).To(Succeed())

		matches := resetLinkRe.FindStringSubmatch(env.sink.last())
		Expect(matches).To(HaveLen(2), "notification should carry the reset link")

		Expect(env.reset.ResetPassword(env.ctx, matches[1], "newpassword")).To(Succeed())

		// Reset kills every session and retires the token.
		_, _, err = env.manager.Validate(env.ctx, liveToken)
		Expect(err).To(HaveOccurred())
		Expect(env.reset.ResetPassword(env.ctx, matches[1], "thirdpassword")).
			To(MatchError(auth.ErrTokenAlreadyUsed))

		_, _, _, err = env.svc.Login(env.ctx, "alice", "newpassword", "", "")
		Expect(err).NotTo(HaveOccurred())
	})

	It("allows exactly one winner among concurrent redemptions", func() {
		user, err := env.users.GetByUsername(env.ctx, "alice")
		Expect(err).NotTo(HaveOccurred())

		token, err := env.issuer.Issue(env.ctx, user.ID, auth.PurposePasswordReset, auth.ResetTokenTTL)
		Expect(err).NotTo(HaveOccurred())

		const attempts = 16
		results := make(chan error, attempts)
		var wg sync.WaitGroup
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, redeemErr := env.issuer.Redeem(env.ctx, token, auth.PurposePasswordReset)
				results <- redeemErr
			}()
		}
		wg.Wait()
		close(results)

		var winners int
		for redeemErr := range results {
			if redeemErr == nil {
				winners++
			}
		}
		Expect(winners).To(Equal(1))
	})

	It("elevates a user through the approval flow", func() {
		user, err := env.users.GetByUsername(env.ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.IsStaff).To(BeFalse())

		_, err = env.elev.Request(env.ctx, user)
		Expect(err).NotTo(HaveOccurred())

		matches := approveLinkRe.FindStringSubmatch(env.sink.last())
		Expect(matches).To(HaveLen(2), "approver notification should carry the decision link")

		status, err := env.elev.Decide(env.ctx, matches[1], auth.DecisionApprove)
		Expect(err).NotTo(HaveOccurred())
		Expect(status).To(Equal(auth.ElevationApproved))

		user, err = env.users.GetByUsername(env.ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.IsStaff).To(BeTrue())

		_, err = env.elev.Decide(env.ctx, matches[1], auth.DecisionApprove)
		Expect(err).To(MatchError(auth.ErrTokenAlreadyUsed))
	})

	It("persists conversations and detaches owners", func() {
		owner, _, _, err := env.svc.Register(env.ctx, "bob", "bob@example.com", "sw0rdf1sh!", "", "")
		Expect(err).NotTo(HaveOccurred())

		conv, err := chat.NewConversation(owner.ID, "General", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(env.convs.Create(env.ctx, conv)).To(Succeed())

		got, err := env.convs.GetByID(env.ctx, conv.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Title).To(Equal("General"))
		Expect(got.OwnerID).NotTo(BeNil())

		got.Title = "Renamed"
		got.Archive(time.Now())
		Expect(env.convs.Update(env.ctx, got)).To(Succeed())

		got, err = env.convs.GetByID(env.ctx, conv.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Title).To(Equal("Renamed"))
		Expect(got.Archived).To(BeTrue())

		Expect(env.convs.DetachOwner(env.ctx, owner.ID)).To(Succeed())
		got, err = env.convs.GetByID(env.ctx, conv.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.OwnerID).To(BeNil())

		count, err := env.convs.Count(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(BeNumerically(">=", 1))
	})
})
