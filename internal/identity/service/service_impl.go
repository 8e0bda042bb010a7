package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/artline/internal/clock"
	"github.com/smallbiznis/artline/internal/config"
	identitydomain "github.com/smallbiznis/artline/internal/identity/domain"
	"github.com/smallbiznis/artline/internal/identity/password"
	"github.com/smallbiznis/artline/internal/identity/session"
	ledgerdomain "github.com/smallbiznis/artline/internal/ledger/domain"
	pkgdb "github.com/smallbiznis/artline/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Cfg       config.Config
	Repo      identitydomain.Repository
	Sessions  *session.Manager
	LedgerSvc ledgerdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.Config
	repo      identitydomain.Repository
	sessions  *session.Manager
	ledgerSvc ledgerdomain.Service
}

func New(p Params) identitydomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("identity.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Cfg,
		repo:      p.Repo,
		sessions:  p.Sessions,
		ledgerSvc: p.LedgerSvc,
	}
}

func (s *Service) Register(ctx context.Context, req identitydomain.RegisterRequest) (*identitydomain.AuthResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, identitydomain.ErrInvalidEmail
	}
	if len(req.Password) < 8 {
		return nil, identitydomain.ErrInvalidPassword
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	user := &identitydomain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Tier:         identitydomain.TierStarter,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user.DisplayName == "" {
		user.DisplayName = strings.Split(email, "@")[0]
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertUser(ctx, tx, user); err != nil {
			if pkgdb.IsDuplicateKeyErr(err) {
				return identitydomain.ErrUserExists
			}
			return err
		}
		if token := strings.TrimSpace(req.GuestToken); token != "" {
			if err := s.adoptGuestJobs(ctx, tx, token, user.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.authResult(user)
}

// adoptGuestJobs transfers a guest's jobs to the freshly registered user:
// guest id cleared, expiry cleared, owner type flipped.
func (s *Service) adoptGuestJobs(ctx context.Context, tx *gorm.DB, guestToken string, userID snowflake.ID) error {
	guest, err := s.repo.FindGuestByToken(ctx, tx, guestToken)
	if err != nil {
		return err
	}
	if guest == nil {
		return nil
	}

	result := tx.WithContext(ctx).Exec(
		`UPDATE jobs
		 SET user_id = ?, guest_id = NULL, owner_type = ?, expires_at = NULL, updated_at = ?
		 WHERE guest_id = ?`,
		userID,
		identitydomain.PrincipalKindUser,
		s.clock.Now(),
		guest.ID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		s.log.Info("migrated guest jobs to user",
			zap.String("guest_id", guest.ID.String()),
			zap.String("user_id", userID.String()),
			zap.Int64("jobs", result.RowsAffected),
		)
	}
	return nil
}

func (s *Service) Login(ctx context.Context, req identitydomain.LoginRequest) (*identitydomain.AuthResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, identitydomain.ErrInvalidCredentials
	}

	user, err := s.repo.FindUserByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if user == nil || !password.Verify(req.Password, user.PasswordHash) {
		return nil, identitydomain.ErrInvalidCredentials
	}

	return s.authResult(user)
}

func (s *Service) InitGuest(ctx context.Context) (*identitydomain.Guest, error) {
	now := s.clock.Now()
	guest := &identitydomain.Guest{
		ID:        s.genID.Generate(),
		Token:     ulid.Make().String(),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.InsertGuest(ctx, s.db, guest); err != nil {
		return nil, err
	}

	if s.cfg.GuestStarterCredits > 0 {
		_, err := s.ledgerSvc.Credit(ctx, s.db, ledgerdomain.CreditRequest{
			Principal: identitydomain.GuestPrincipal(guest.ID),
			Amount:    s.cfg.GuestStarterCredits,
			Reason:    ledgerdomain.ReasonTopup,
		})
		if err != nil {
			return nil, err
		}
		guest.Balance = s.cfg.GuestStarterCredits
	}

	return guest, nil
}

func (s *Service) ResolveGuest(ctx context.Context, token string) (*identitydomain.Guest, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, identitydomain.ErrNotFound
	}
	guest, err := s.repo.FindGuestByToken(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if guest == nil {
		return nil, identitydomain.ErrNotFound
	}
	return guest, nil
}

func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (*identitydomain.User, error) {
	user, err := s.repo.FindUserByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, identitydomain.ErrNotFound
	}
	return user, nil
}

func (s *Service) authResult(user *identitydomain.User) (*identitydomain.AuthResult, error) {
	token, expiresAt, err := s.sessions.Issue(user, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &identitydomain.AuthResult{
		User:      user,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}
