package main

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// SignInResult is returned by the sign-in endpoint.
type SignInResult struct {
	Profile UserProfile `json:"profile"`
	Created bool        `json:"created"`
	// Merged counts guest holdings folded into the user's portfolio.
	Merged int `json:"merged"`
}

// ProfileService manages user profile documents.
type ProfileService struct {
	db         *Database
	portfolios *PortfolioRegistry
	hub        *EventHub
	logger     *zap.Logger
	now        func() time.Time
}

func NewProfileService(db *Database, portfolios *PortfolioRegistry, hub *EventHub, logger *zap.Logger) *ProfileService {
	return &ProfileService{
		db:         db,
		portfolios: portfolios,
		hub:        hub,
		logger:     logger.Named("profile"),
		now:        time.Now,
	}
}

// SignIn creates the profile document on first sign-in and optionally folds
// the caller's guest portfolio into the user's.
func (s *ProfileService) SignIn(id Identity, req SignInRequest) (*SignInResult, error) {
	user, created, err := s.db.EnsureUser(id.UserID, strings.TrimSpace(req.Email), strings.TrimSpace(req.DisplayName))
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("created profile", zap.String("user", id.UserID), zap.String("email", user.Email))
	}

	result := &SignInResult{Profile: user.Profile(), Created: created}
	if req.MergeGuest && s.portfolios != nil {
		merged, err := s.portfolios.MergeGuest(Identity{GuestID: id.GuestID}, id)
		if err != nil {
			return nil, err
		}
		result.Merged = merged
		if merged > 0 {
			s.logger.Info("merged guest portfolio", zap.String("user", id.UserID), zap.String("guest", id.GuestID), zap.Int("holdings", merged))
		}
	}

	s.publish(result.Profile)
	return result, nil
}

// Get returns the profile of uid; a user that never signed in gets defaults.
func (s *ProfileService) Get(uid string) (UserProfile, error) {
	user, _, err := s.db.GetUser(uid)
	if err != nil {
		return UserProfile{}, err
	}
	return user.Profile(), nil
}

// SetPro toggles the Pro flag.
func (s *ProfileService) SetPro(uid string, isPro bool) (UserProfile, error) {
	user, err := s.db.SetPro(uid, isPro, s.now().UTC())
	if err != nil {
		return UserProfile{}, err
	}
	s.logger.Info("pro status changed", zap.String("user", uid), zap.Bool("isPro", isPro))

	profile := user.Profile()
	s.publish(profile)
	return profile, nil
}

// CompletePayment marks the payer as Pro once checkout has succeeded.
func (s *ProfileService) CompletePayment(uid string) (UserProfile, error) {
	return s.SetPro(uid, true)
}

func (s *ProfileService) publish(profile UserProfile) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(Event{Topic: TopicProfile, Owner: Identity{UserID: profile.UserID}.Owner(), Payload: profile})
}
