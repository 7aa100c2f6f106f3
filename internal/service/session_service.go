package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rembon2016/cts-merchant-sub001/internal/model"
	"github.com/rembon2016/cts-merchant-sub001/internal/repository"
	"github.com/rembon2016/cts-merchant-sub001/pkg/jwt"
	"github.com/rembon2016/cts-merchant-sub001/pkg/validator"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrSessionExpired = errors.New("session expired")
	ErrBranchMismatch = errors.New("token branch does not match session")
)

// OpenSessionRequest carries the credentials the merchant app received from the backend login.
type OpenSessionRequest struct {
	AuthToken    string `json:"auth_token" validate:"required"`
	AuthPosToken string `json:"auth_pos_token"`
	BranchID     int64  `json:"branch_id" validate:"required,gt=0"`
	UserID       int64  `json:"user_id" validate:"required,gt=0"`
}

type OpenSessionResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
}

type SessionService interface {
	Open(ctx context.Context, req OpenSessionRequest) (*OpenSessionResponse, error)
	Validate(ctx context.Context, token string) (*jwt.Claims, *model.Session, error)
	SwitchBranch(ctx context.Context, sessionID string, branchID int64) (*OpenSessionResponse, error)
	Close(ctx context.Context, sessionID string) error
}

type sessionService struct {
	repo       repository.SessionRepository
	jwt        *jwt.Manager
	workspaces *Workspaces
	logger     *zap.Logger
}

func NewSessionService(repo repository.SessionRepository, manager *jwt.Manager, workspaces *Workspaces, logger *zap.Logger) SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessionService{
		repo:       repo,
		jwt:        manager,
		workspaces: workspaces,
		logger:     logger,
	}
}

func (s *sessionService) Open(ctx context.Context, req OpenSessionRequest) (*OpenSessionResponse, error) {
	// 1. Validate
	if err := validator.Check(&req); err != nil {
		return nil, err
	}

	// 2. Store the session
	id := uuid.New()
	sess := &model.Session{
		BranchActive: req.BranchID,
		UserID:       req.UserID,
		AuthToken:    req.AuthToken,
		AuthPosToken: req.AuthPosToken,
	}
	if err := s.repo.Set(ctx, id.String(), sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	// 3. Issue token
	token, err := s.jwt.GenerateToken(id, req.UserID, req.BranchID)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	s.logger.Info("session opened",
		zap.String("session_id", id.String()),
		zap.Int64("user_id", req.UserID),
		zap.Int64("branch_id", req.BranchID),
	)
	return &OpenSessionResponse{Token: token, SessionID: id.String()}, nil
}

// Validate checks the token and loads the session it points at.
func (s *sessionService) Validate(ctx context.Context, token string) (*jwt.Claims, *model.Session, error) {
	claims, err := s.jwt.ValidateToken(token)
	if err != nil {
		return nil, nil, err
	}
	sess, err := s.repo.Get(ctx, claims.SessionID.String())
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, nil, ErrSessionExpired
		}
		return nil, nil, err
	}
	if sess.BranchActive != claims.BranchID {
		return nil, nil, ErrBranchMismatch
	}
	return claims, sess, nil
}

// SwitchBranch moves the session to another branch. The selection and tax belong to the
// old branch and are dropped, and a new token is issued.
func (s *sessionService) SwitchBranch(ctx context.Context, sessionID string, branchID int64) (*OpenSessionResponse, error) {
	if branchID <= 0 {
		return nil, fmt.Errorf("%w: Field 'BranchID' failed on tag 'gt'", validator.ErrValidation)
	}
	sid, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, repository.ErrSessionNotFound
	}

	var userID int64
	err = s.repo.Update(ctx, sessionID, func(sess *model.Session) {
		sess.ClearCheckout()
		sess.BranchActive = branchID
		userID = sess.UserID
	})
	if err != nil {
		return nil, err
	}
	s.workspaces.Drop(sessionID)

	token, err := s.jwt.GenerateToken(sid, userID, branchID)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	return &OpenSessionResponse{Token: token, SessionID: sessionID}, nil
}

func (s *sessionService) Close(ctx context.Context, sessionID string) error {
	s.workspaces.Drop(sessionID)
	if err := s.repo.Delete(ctx, sessionID); err != nil {
		return err
	}
	s.logger.Info("session closed", zap.String("session_id", sessionID))
	return nil
}
