package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stepup-auth/internal/attempts"
	"stepup-auth/internal/channel"
	"stepup-auth/internal/config"
	"stepup-auth/internal/encryption"
	"stepup-auth/internal/events"
	"stepup-auth/internal/federation"
	"stepup-auth/internal/hashing"
	"stepup-auth/internal/identity"
	"stepup-auth/internal/otp"
	"stepup-auth/internal/session"
	"stepup-auth/internal/token"
	"stepup-auth/internal/util"
)

var (
	// Input errors: the caller sent something malformed. No attempt is
	// consumed and no session state changes.
	ErrInvalidInput = errors.New("invalid input")

	// Policy errors: the request was well formed but refused.
	ErrInvalidCode         = errors.New("invalid code")
	ErrTooManyAttempts     = errors.New("too many attempts")
	ErrAccountLocked       = errors.New("account locked")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrResendNotAvailable  = errors.New("resend not available yet")
	ErrChannelNotInSession = errors.New("channel not part of session")

	// Transient errors: a dependency failed; retrying may succeed.
	ErrDeliveryFailed = errors.New("code delivery failed on all channels")
)

// ChannelTarget names one delivery destination for a new session.
type ChannelTarget struct {
	Kind        channel.Kind
	Destination string
}

// StartResult reports a created verification session.
type StartResult struct {
	SessionID string         `json:"session_id"`
	Channels  []channel.Kind `json:"channels"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// LoginResult is either a step-up demand or direct tokens. Tokens are
// issued straight away only when the identity has no channel to step up
// over; federated logins always step up.
type LoginResult struct {
	StepUp *StartResult `json:"step_up,omitempty"`
	Tokens *token.Pair  `json:"tokens,omitempty"`
}

// VerifyResult carries the tokens minted for the winning verification.
type VerifyResult struct {
	SubjectID   string       `json:"subject_id"`
	VerifiedVia channel.Kind `json:"verified_via"`
	Tokens      *token.Pair  `json:"tokens"`
}

// AuthService orchestrates the step-up verification flows. All session
// transitions go through the store's mutation discipline so concurrent
// writers resolve to exactly one terminal winner.
type AuthService struct {
	cfg        *config.Config
	sessions   session.Store
	identities identity.Store
	tracker    *attempts.Tracker
	dispatcher *channel.Dispatcher
	generator  *otp.Generator
	hasher     *hashing.Hasher
	encryptor  *encryption.Manager
	issuer     *token.Issuer
	provider   federation.Provider
	emitter    *events.Emitter

	now func() time.Time
}

func NewAuthService(
	cfg *config.Config,
	sessions session.Store,
	identities identity.Store,
	tracker *attempts.Tracker,
	dispatcher *channel.Dispatcher,
	generator *otp.Generator,
	hasher *hashing.Hasher,
	encryptor *encryption.Manager,
	issuer *token.Issuer,
	provider federation.Provider,
	emitter *events.Emitter,
) *AuthService {
	return &AuthService{
		cfg:        cfg,
		sessions:   sessions,
		identities: identities,
		tracker:    tracker,
		dispatcher: dispatcher,
		generator:  generator,
		hasher:     hasher,
		encryptor:  encryptor,
		issuer:     issuer,
		provider:   provider,
		emitter:    emitter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source for tests.
func (s *AuthService) SetClock(clock func() time.Time) {
	s.now = clock
}

// RegistrationRequest starts a new identity plus its first verification
// session. Email is mandatory; phone adds a second channel.
type RegistrationRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

func (s *AuthService) StartRegistration(ctx context.Context, req RegistrationRequest) (*StartResult, error) {
	req.Email = util.SanitizeInput(req.Email)
	req.Phone = util.SanitizeInput(req.Phone)
	if util.ContainsSuspicious(req.Email) || util.ContainsSuspicious(req.Phone) {
		return nil, fmt.Errorf("%w: identifier carries markup", ErrInvalidInput)
	}
	if err := channel.ValidateDestination(channel.KindEmail, req.Email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if req.Phone != "" {
		if err := channel.ValidateDestination(channel.KindMessaging, req.Phone); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if len(req.Password) < 8 {
		return nil, fmt.Errorf("%w: password too short", ErrInvalidInput)
	}

	passwordHash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	emailEncrypted, err := s.encryptor.EncryptField(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	ident := &identity.Identity{
		ID:             uuid.New(),
		EmailHash:      identity.LookupHash(req.Email),
		EmailEncrypted: emailEncrypted,
		PasswordHash:   passwordHash,
		Status:         identity.StatusPending,
		CreatedAt:      s.now(),
		UpdatedAt:      s.now(),
	}
	if req.Phone != "" {
		phoneEncrypted, err := s.encryptor.EncryptField(ctx, req.Phone)
		if err != nil {
			return nil, err
		}
		ident.PhoneHash = identity.LookupHash(req.Phone)
		ident.PhoneEncrypted = phoneEncrypted
	}

	if err := s.identities.Create(ctx, ident); err != nil {
		return nil, err
	}

	targets := []ChannelTarget{{Kind: channel.KindEmail, Destination: req.Email}}
	if req.Phone != "" {
		targets = append(targets, ChannelTarget{Kind: channel.KindMessaging, Destination: req.Phone})
	}

	result, err := s.startSession(ctx, ident.ID.String(), targets)
	if err != nil {
		return nil, err
	}

	event := events.New(events.TypeSessionStarted)
	event.SessionID = result.SessionID
	event.SubjectID = ident.ID.String()
	event.MaskedDestination = util.MaskDestination(req.Email)
	event.Success = true
	event.Metadata = map[string]string{"flow": "registration"}
	s.emitter.Emit(event)

	return result, nil
}

// LoginRequest authenticates a password and, on success, always demands
// step-up verification before any token is minted.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (s *AuthService) StartLogin(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	identifier := util.SanitizeInput(req.Identifier)
	if identifier == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: identifier and password are required", ErrInvalidInput)
	}
	if util.ContainsSuspicious(identifier) {
		return nil, fmt.Errorf("%w: identifier carries markup", ErrInvalidInput)
	}

	locked, err := s.tracker.IsLoginLocked(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if locked {
		s.emitLoginEvent(events.TypeLoginLocked, "", identifier, false, "lockout active")
		return nil, ErrAccountLocked
	}

	ident, err := s.findIdentity(ctx, identifier)
	if err != nil {
		if errors.Is(err, identity.ErrIdentityNotFound) {
			// Burn a failure so unknown identifiers cost the same as
			// wrong passwords.
			if recordErr := s.tracker.RecordLoginFailure(ctx, identifier); recordErr != nil {
				util.Warn("Failed to record login failure", zap.Error(recordErr))
			}
			s.emitLoginEvent(events.TypeLoginFailed, "", identifier, false, "unknown identifier")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	reason := "password mismatch"
	ok, err := s.hasher.VerifyPassword(req.Password, ident.PasswordHash)
	if err != nil {
		// Missing or unreadable stored hash (federated identities carry
		// no password). The caller sees a plain credential failure.
		ok = false
		reason = "no usable password credential"
	}
	if !ok {
		if recordErr := s.tracker.RecordLoginFailure(ctx, identifier); recordErr != nil {
			util.Warn("Failed to record login failure", zap.Error(recordErr))
		}
		s.emitLoginEvent(events.TypeLoginFailed, ident.ID.String(), identifier, false, reason)
		return nil, ErrInvalidCredentials
	}

	if err := s.tracker.ResetLogin(ctx, identifier); err != nil {
		util.Warn("Failed to reset login failure counter", zap.Error(err))
	}

	targets, err := s.identityTargets(ctx, ident)
	if err != nil {
		return nil, err
	}

	// No channel to step up over: the primary credential alone suffices.
	if len(targets) == 0 {
		pair, err := s.issuer.Issue(ident.ID.String(), []string{"profile"})
		if err != nil {
			return nil, err
		}
		if err := s.identities.RecordLogin(ctx, ident.ID, s.now()); err != nil {
			util.Warn("Failed to record login time", zap.Error(err))
		}
		s.emitLoginEvent(events.TypeTokensIssued, ident.ID.String(), identifier, true, "no second factor configured")
		return &LoginResult{Tokens: pair}, nil
	}

	result, err := s.startSession(ctx, ident.ID.String(), targets)
	if err != nil {
		return nil, err
	}

	s.emitLoginEvent(events.TypeLoginSucceeded, ident.ID.String(), identifier, true, "step-up required")

	return &LoginResult{StepUp: result}, nil
}

// VerifyRequest submits a code against one channel of a session.
type VerifyRequest struct {
	SessionID string       `json:"session_id"`
	Channel   channel.Kind `json:"channel"`
	Code      string       `json:"code"`
}

func (s *AuthService) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	// Malformed input never consumes an attempt.
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	if !channel.ValidKind(req.Channel) {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidInput, req.Channel)
	}
	if !validCodeShape(req.Code, s.generator.Digits()) {
		return nil, fmt.Errorf("%w: code must be %d digits", ErrInvalidInput, s.generator.Digits())
	}

	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionExpired) {
			s.emitSessionEvent(events.TypeSessionExpired, req.SessionID, "", req.Channel, false, "session expired")
		}
		return nil, err
	}

	if sess.Status == session.StatusLocked {
		s.emitSessionEvent(events.TypeOTPRejected, sess.ID, sess.SubjectID, req.Channel, false, "session locked")
		return nil, ErrTooManyAttempts
	}
	if sess.Status.Terminal() {
		s.emitSessionEvent(events.TypeOTPRejected, sess.ID, sess.SubjectID, req.Channel, false, "session already decided")
		return nil, session.ErrSessionTerminal
	}

	blocked, err := s.tracker.IsOTPBlocked(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if blocked {
		s.emitSessionEvent(events.TypeOTPRejected, sess.ID, sess.SubjectID, req.Channel, false, "attempt limit active")
		return nil, ErrTooManyAttempts
	}

	state := sess.Channel(req.Channel)
	if state == nil {
		s.emitSessionEvent(events.TypeOTPRejected, sess.ID, sess.SubjectID, req.Channel, false, "channel not in session")
		return nil, fmt.Errorf("%w: %q", ErrChannelNotInSession, req.Channel)
	}
	if state.ConsumedAt != nil {
		s.emitSessionEvent(events.TypeOTPRejected, sess.ID, sess.SubjectID, req.Channel, false, "code already consumed")
		return nil, fmt.Errorf("%w: code already consumed", ErrInvalidCode)
	}

	match, err := s.hasher.VerifyOTP(req.Code, state.CodeHash)
	if err != nil {
		return nil, err
	}

	if !match {
		return nil, s.handleMismatch(ctx, sess, req.Channel)
	}

	verifiedAt := s.now()
	matchedHash := state.CodeHash
	updated, err := s.sessions.Update(ctx, req.SessionID, func(current *session.Session) error {
		target := current.Channel(req.Channel)
		if target == nil {
			return fmt.Errorf("%w: %q", ErrChannelNotInSession, req.Channel)
		}
		if target.ConsumedAt != nil {
			return fmt.Errorf("%w: code already consumed", ErrInvalidCode)
		}
		// A resend that committed after our read replaced the hash; the
		// code we matched is no longer the live one.
		if !sameCodeHash(target.CodeHash, matchedHash) {
			return fmt.Errorf("%w: code superseded by resend", ErrInvalidCode)
		}
		current.Status = session.StatusVerified
		current.VerifiedVia = req.Channel
		target.ConsumedAt = &verifiedAt
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCode):
			s.emitSessionEvent(events.TypeOTPRejected, req.SessionID, sess.SubjectID, req.Channel, false, "code no longer current")
		case errors.Is(err, session.ErrSessionTerminal):
			// A concurrent verifier won the terminal transition.
			s.emitSessionEvent(events.TypeOTPRejected, req.SessionID, sess.SubjectID, req.Channel, false, "session already decided")
		}
		return nil, err
	}

	if err := s.tracker.ResetOTP(ctx, req.SessionID); err != nil {
		util.Warn("Failed to reset attempt counter",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
	}

	subjectID, err := uuid.Parse(updated.SubjectID)
	if err == nil {
		if err := s.identities.Activate(ctx, subjectID); err != nil && !errors.Is(err, identity.ErrIdentityNotFound) {
			util.Warn("Failed to activate identity",
				zap.String("subject_id", updated.SubjectID),
				zap.Error(err))
		}
		if err := s.identities.RecordLogin(ctx, subjectID, verifiedAt); err != nil && !errors.Is(err, identity.ErrIdentityNotFound) {
			util.Warn("Failed to record login time",
				zap.String("subject_id", updated.SubjectID),
				zap.Error(err))
		}
	}

	pair, err := s.issuer.Issue(updated.SubjectID, []string{"profile"})
	if err != nil {
		return nil, err
	}

	s.emitSessionEvent(events.TypeOTPVerified, req.SessionID, updated.SubjectID, req.Channel, true, "")

	return &VerifyResult{
		SubjectID:   updated.SubjectID,
		VerifiedVia: req.Channel,
		Tokens:      pair,
	}, nil
}

func (s *AuthService) handleMismatch(ctx context.Context, sess *session.Session, kind channel.Kind) error {
	blocked, err := s.tracker.RecordOTPFailure(ctx, sess.ID)
	if err != nil {
		return err
	}

	if !blocked {
		s.emitSessionEvent(events.TypeOTPRejected, sess.ID, sess.SubjectID, kind, false, "code mismatch")
		return ErrInvalidCode
	}

	_, err = s.sessions.Update(ctx, sess.ID, func(current *session.Session) error {
		current.Status = session.StatusLocked
		return nil
	})
	if err != nil && !errors.Is(err, session.ErrSessionTerminal) && !errors.Is(err, session.ErrSessionExpired) {
		util.Warn("Failed to lock session",
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}

	s.emitSessionEvent(events.TypeSessionLocked, sess.ID, sess.SubjectID, kind, false, "attempt limit reached")
	return ErrTooManyAttempts
}

// ResendRequest reissues the code on one channel of a pending session.
type ResendRequest struct {
	SessionID string       `json:"session_id"`
	Channel   channel.Kind `json:"channel"`
}

// ResendResult echoes the unchanged expiry so callers can keep their
// countdown honest.
type ResendResult struct {
	ExpiresAt         time.Time `json:"expires_at"`
	ResendAvailableAt time.Time `json:"resend_available_at"`
}

func (s *AuthService) Resend(ctx context.Context, req ResendRequest) (*ResendResult, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	if !channel.ValidKind(req.Channel) {
		return nil, fmt.Errorf("%w: unknown channel %q", ErrInvalidInput, req.Channel)
	}

	sess, err := s.sessions.Get(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionExpired) {
			s.emitSessionEvent(events.TypeSessionExpired, req.SessionID, "", req.Channel, false, "session expired")
		}
		return nil, err
	}
	if sess.Status == session.StatusLocked {
		s.emitSessionEvent(events.TypeResendRejected, sess.ID, sess.SubjectID, req.Channel, false, "session locked")
		return nil, ErrTooManyAttempts
	}
	if sess.Status.Terminal() {
		s.emitSessionEvent(events.TypeResendRejected, sess.ID, sess.SubjectID, req.Channel, false, "session already decided")
		return nil, session.ErrSessionTerminal
	}

	state := sess.Channel(req.Channel)
	if state == nil {
		s.emitSessionEvent(events.TypeResendRejected, sess.ID, sess.SubjectID, req.Channel, false, "channel not in session")
		return nil, fmt.Errorf("%w: %q", ErrChannelNotInSession, req.Channel)
	}

	now := s.now()
	if now.Before(state.ResendAvailableAt) {
		s.emitSessionEvent(events.TypeResendRejected, sess.ID, sess.SubjectID, req.Channel, false, "cooldown active")
		return nil, fmt.Errorf("%w: available at %s", ErrResendNotAvailable,
			state.ResendAvailableAt.Format(time.RFC3339))
	}

	destination, err := s.encryptor.DecryptField(ctx, state.Destination)
	if err != nil {
		return nil, err
	}

	code, err := s.generator.Generate(ctx)
	if err != nil {
		return nil, err
	}
	codeHash, err := s.hasher.HashOTP(code)
	if err != nil {
		return nil, err
	}

	nextResendAt := resendAvailableAt(now, s.cfg.OTP.ResendCooldown, sess.ExpiresAt)

	// Replacing the hash before delivery means the old code is dead the
	// moment resend is accepted, even if delivery of the new one fails.
	_, err = s.sessions.Update(ctx, req.SessionID, func(current *session.Session) error {
		target := current.Channel(req.Channel)
		if target == nil {
			return fmt.Errorf("%w: %q", ErrChannelNotInSession, req.Channel)
		}
		target.CodeHash = codeHash
		target.DeliveredAt = now
		target.ConsumedAt = nil
		target.ResendAvailableAt = nextResendAt
		return nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.deliverWithRetry(ctx, req.Channel, destination, code); err != nil {
		s.emitSessionEvent(events.TypeDeliveryFailed, req.SessionID, sess.SubjectID, req.Channel, false, "resend delivery failed")
		return nil, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	event := events.New(events.TypeOTPResent)
	event.SessionID = req.SessionID
	event.SubjectID = sess.SubjectID
	event.Channel = string(req.Channel)
	event.MaskedDestination = util.MaskDestination(destination)
	event.Success = true
	s.emitter.Emit(event)

	return &ResendResult{
		ExpiresAt:         sess.ExpiresAt,
		ResendAvailableAt: nextResendAt,
	}, nil
}

// HandleFederatedCallback completes an upstream OAuth exchange. Federated
// logins are never trusted outright: the profile email always gets a fresh
// step-up session.
func (s *AuthService) HandleFederatedCallback(ctx context.Context, code string) (*LoginResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: authorization code is required", ErrInvalidInput)
	}

	accessToken, err := s.provider.ExchangeCode(ctx, code)
	if err != nil {
		s.emitFederatedFailure("code exchange failed")
		return nil, err
	}

	profile, err := s.provider.FetchProfile(ctx, accessToken)
	if err != nil {
		s.emitFederatedFailure("profile fetch failed")
		return nil, err
	}

	ident, err := s.identities.FindByEmail(ctx, profile.Email)
	if errors.Is(err, identity.ErrIdentityNotFound) {
		emailEncrypted, encErr := s.encryptor.EncryptField(ctx, profile.Email)
		if encErr != nil {
			return nil, encErr
		}
		ident = &identity.Identity{
			ID:             uuid.New(),
			EmailHash:      identity.LookupHash(profile.Email),
			EmailEncrypted: emailEncrypted,
			Status:         identity.StatusPending,
			Federated:      true,
			CreatedAt:      s.now(),
			UpdatedAt:      s.now(),
		}
		if createErr := s.identities.Create(ctx, ident); createErr != nil {
			return nil, createErr
		}
	} else if err != nil {
		return nil, err
	}

	result, err := s.startSession(ctx, ident.ID.String(), []ChannelTarget{
		{Kind: channel.KindEmail, Destination: profile.Email},
	})
	if err != nil {
		return nil, err
	}

	event := events.New(events.TypeFederatedStepUp)
	event.SessionID = result.SessionID
	event.SubjectID = ident.ID.String()
	event.MaskedDestination = util.MaskEmail(profile.Email)
	event.Success = true
	s.emitter.Emit(event)

	return &LoginResult{StepUp: result}, nil
}

// startSession creates a pending session and fans the codes out to every
// target concurrently. The session survives if at least one channel
// delivers; the ones that failed simply have no reachable code.
func (s *AuthService) startSession(ctx context.Context, subjectID string, targets []ChannelTarget) (*StartResult, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: at least one channel is required", ErrInvalidInput)
	}

	sessionID, err := session.NewSessionID()
	if err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := now.Add(s.cfg.OTP.TTL)

	type issued struct {
		target ChannelTarget
		code   string
	}

	sess := &session.Session{
		ID:        sessionID,
		SubjectID: subjectID,
		Status:    session.StatusPending,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	codes := make([]issued, 0, len(targets))
	for _, target := range targets {
		code, err := s.generator.Generate(ctx)
		if err != nil {
			return nil, err
		}
		codeHash, err := s.hasher.HashOTP(code)
		if err != nil {
			return nil, err
		}
		destEncrypted, err := s.encryptor.EncryptField(ctx, target.Destination)
		if err != nil {
			return nil, err
		}

		sess.Channels = append(sess.Channels, session.ChannelState{
			Kind:              target.Kind,
			Destination:       destEncrypted,
			CodeHash:          codeHash,
			DeliveredAt:       now,
			ResendAvailableAt: resendAvailableAt(now, s.cfg.OTP.ResendCooldown, expiresAt),
		})
		codes = append(codes, issued{target: target, code: code})
	}

	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	var group errgroup.Group
	delivered := make([]bool, len(codes))
	for i, entry := range codes {
		i, entry := i, entry
		group.Go(func() error {
			if _, err := s.deliverWithRetry(ctx, entry.target.Kind, entry.target.Destination, entry.code); err != nil {
				util.Warn("Code delivery failed",
					zap.String("session_id", sessionID),
					zap.String("channel", string(entry.target.Kind)),
					zap.String("destination", util.MaskDestination(entry.target.Destination)),
					zap.Error(err))
				return nil
			}
			delivered[i] = true
			return nil
		})
	}
	_ = group.Wait()

	anyDelivered := false
	for _, ok := range delivered {
		anyDelivered = anyDelivered || ok
	}
	if !anyDelivered {
		if delErr := s.sessions.Delete(ctx, sessionID); delErr != nil {
			util.Warn("Failed to delete undeliverable session",
				zap.String("session_id", sessionID),
				zap.Error(delErr))
		}
		return nil, ErrDeliveryFailed
	}

	return &StartResult{
		SessionID: sessionID,
		Channels:  sess.ChannelKinds(),
		ExpiresAt: expiresAt,
	}, nil
}

// deliverWithRetry retries exactly once, and only when the transport was
// unreachable. Rejections are final.
func (s *AuthService) deliverWithRetry(ctx context.Context, kind channel.Kind, destination, code string) (*channel.Receipt, error) {
	receipt, err := s.dispatcher.Deliver(ctx, kind, destination, code)
	if err == nil {
		return receipt, nil
	}
	if !errors.Is(err, channel.ErrChannelUnavailable) {
		return nil, err
	}
	return s.dispatcher.Deliver(ctx, kind, destination, code)
}

func (s *AuthService) findIdentity(ctx context.Context, identifier string) (*identity.Identity, error) {
	if strings.ContainsRune(identifier, '@') {
		return s.identities.FindByEmail(ctx, identifier)
	}
	return s.identities.FindByPhone(ctx, identifier)
}

func (s *AuthService) identityTargets(ctx context.Context, ident *identity.Identity) ([]ChannelTarget, error) {
	var targets []ChannelTarget

	if ident.EmailEncrypted != nil {
		email, err := s.encryptor.DecryptField(ctx, ident.EmailEncrypted)
		if err != nil {
			return nil, err
		}
		targets = append(targets, ChannelTarget{Kind: channel.KindEmail, Destination: email})
	}
	if ident.PhoneEncrypted != nil {
		phone, err := s.encryptor.DecryptField(ctx, ident.PhoneEncrypted)
		if err != nil {
			return nil, err
		}
		targets = append(targets, ChannelTarget{Kind: channel.KindMessaging, Destination: phone})
	}

	return targets, nil
}

func (s *AuthService) emitFederatedFailure(reason string) {
	event := events.New(events.TypeLoginFailed)
	event.Success = false
	event.Reason = reason
	event.Metadata = map[string]string{"flow": "federated"}
	s.emitter.Emit(event)
}

func (s *AuthService) emitLoginEvent(eventType events.Type, subjectID, identifier string, success bool, reason string) {
	event := events.New(eventType)
	event.SubjectID = subjectID
	event.MaskedDestination = util.MaskDestination(identifier)
	event.Success = success
	event.Reason = reason
	s.emitter.Emit(event)
}

func (s *AuthService) emitSessionEvent(eventType events.Type, sessionID, subjectID string, kind channel.Kind, success bool, reason string) {
	event := events.New(eventType)
	event.SessionID = sessionID
	event.SubjectID = subjectID
	event.Channel = string(kind)
	event.Success = success
	event.Reason = reason
	s.emitter.Emit(event)
}

// sameCodeHash reports whether two stored hash records were minted for the
// same issued code.
func sameCodeHash(a, b *hashing.Result) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Hash == b.Hash && a.Salt == b.Salt
}

func validCodeShape(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func resendAvailableAt(now time.Time, cooldown time.Duration, expiresAt time.Time) time.Time {
	at := now.Add(cooldown)
	if at.After(expiresAt) {
		return expiresAt
	}
	return at
}
