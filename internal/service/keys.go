// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/repository"
)

const (
	// maxKeyRetries bounds regeneration after a key value collision.
	maxKeyRetries = 3
	// publishTimeout is the max time spent publishing a key event.
	publishTimeout = 100 * time.Millisecond
)

// Store is the key store the service depends on.
// *repository.Repository implements it.
type Store interface {
	UserExists(ctx context.Context, id string) (bool, error)
	GetLiveAccessKey(ctx context.Context, userID string, now time.Time) (*model.AccessKey, error)
	GetAccessKeyByValue(ctx context.Context, keyValue string, now time.Time) (*model.AccessKey, error)
	UpsertAccessKey(ctx context.Context, key *model.AccessKey, now time.Time) (*model.AccessKey, error)
	GetAccessKeysByUserIDs(ctx context.Context, userIDs []string) ([]*model.AccessKey, error)
	GetDeviceBinding(ctx context.Context, userID string) (*model.DeviceBinding, error)
	GetDeviceBindingByFingerprint(ctx context.Context, fingerprintHash string) (*model.DeviceBinding, error)
	BindDevice(ctx context.Context, binding *model.DeviceBinding) error
	DeleteDeviceBinding(ctx context.Context, userID string) error
}

// VerifyCache caches positive verification results.
// *cache.Cache implements it.
type VerifyCache interface {
	GetVerifiedKey(ctx context.Context, keyValue string) (*model.AccessKey, error)
	SetVerifiedKey(ctx context.Context, key *model.AccessKey, now time.Time) error
}

// EventPublisher broadcasts key state changes.
// *cache.Cache implements it.
type EventPublisher interface {
	PublishKeyEvent(ctx context.Context, event model.KeyEvent) error
}

// KeyServiceConfig tunes a KeyService. Zero values select defaults.
type KeyServiceConfig struct {
	KeyTTL           time.Duration
	RequireKnownUser bool
	Now              func() time.Time
	GenerateKey      func() (string, error)
}

// KeyService issues and verifies access keys.
type KeyService struct {
	store   Store
	cache   VerifyCache
	events  EventPublisher
	logger  *slog.Logger
	metrics metrics.Recorder

	keyTTL           time.Duration
	requireKnownUser bool
	now              func() time.Time
	generateKey      func() (string, error)
}

// NewKeyService creates a new KeyService. cache and events may be nil.
func NewKeyService(store Store, cache VerifyCache, events EventPublisher, logger *slog.Logger, recorder metrics.Recorder, cfg KeyServiceConfig) *KeyService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = model.DefaultKeyTTL
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.GenerateKey == nil {
		cfg.GenerateKey = auth.GenerateKeyValue
	}
	return &KeyService{
		store:            store,
		cache:            cache,
		events:           events,
		logger:           logger.With("component", "service.keys"),
		metrics:          recorder,
		keyTTL:           cfg.KeyTTL,
		requireKnownUser: cfg.RequireKnownUser,
		now:              cfg.Now,
		generateKey:      cfg.GenerateKey,
	}
}

// IssueResult is the outcome of Issue.
type IssueResult struct {
	Key    *model.AccessKey
	Reused bool
}

// Issue returns the user's live key, minting a new one if there is none.
// Calls within the validity window return the same key and expiry.
func (s *KeyService) Issue(ctx context.Context, userID string) (*IssueResult, error) {
	userID = strings.TrimSpace(userID)
	if err := ValidateUserID(userID); err != nil {
		return nil, err
	}

	if s.requireKnownUser {
		exists, err := s.store.UserExists(ctx, userID)
		if err != nil {
			return nil, storeError("user_exists", err)
		}
		if !exists {
			return nil, ErrUnknownUser
		}
	}

	now := s.now()

	live, err := s.getLiveKey(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if live != nil {
		s.metrics.IncKeyIssued(metrics.IssueReused)
		return &IssueResult{Key: live, Reused: true}, nil
	}

	for attempt := 1; attempt <= maxKeyRetries; attempt++ {
		value, err := s.generateKey()
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}

		key := &model.AccessKey{
			UserID:    userID,
			KeyValue:  value,
			ExpiresAt: now.Add(s.keyTTL),
			CreatedAt: now,
		}

		start := time.Now()
		stored, err := s.store.UpsertAccessKey(ctx, key, now)
		s.metrics.ObserveStoreDuration("upsert_access_key", time.Since(start))

		switch {
		case err == nil:
			s.metrics.IncKeyIssued(metrics.IssueMinted)
			s.logger.Info("access key issued",
				"user_id", userID,
				"key_prefix", stored.KeyPrefix(),
				"expires_at", stored.ExpiresAt,
			)
			s.publish(ctx, model.EventKeyIssued, userID, now)
			return &IssueResult{Key: stored}, nil

		case errors.Is(err, repository.ErrLiveKeyExists):
			// A concurrent issuance won; hand out its key.
			winner, err := s.getLiveKey(ctx, userID, now)
			if err != nil {
				return nil, err
			}
			if winner == nil {
				return nil, storeError("upsert_access_key", errors.New("live key vanished after conflict"))
			}
			s.metrics.IncKeyIssued(metrics.IssueReused)
			return &IssueResult{Key: winner, Reused: true}, nil

		case errors.Is(err, repository.ErrKeyValueCollision):
			s.logger.Warn("access key value collision, regenerating", "user_id", userID, "attempt", attempt)
			continue

		default:
			return nil, storeError("upsert_access_key", err)
		}
	}

	return nil, ErrKeyGenerationFailed
}

// VerifyResult is the outcome of Verify.
// UserID is only set when Valid is true.
type VerifyResult struct {
	Valid  bool
	UserID string
	Reason string
}

// Verify reports whether keyValue is live. When fingerprint is non-empty
// the device binding of the key's owner is checked and, on first use,
// recorded.
func (s *KeyService) Verify(ctx context.Context, keyValue, fingerprint string) (*VerifyResult, error) {
	keyValue = strings.TrimSpace(keyValue)
	if keyValue == "" {
		return nil, ErrMissingKey
	}
	if err := ValidateFingerprint(fingerprint); err != nil {
		return nil, err
	}

	if !auth.ValidateKeyFormat(keyValue) {
		s.metrics.IncKeyVerified(metrics.VerifyMalformed)
		return &VerifyResult{Valid: false}, nil
	}

	now := s.now()

	key, err := s.lookupKey(ctx, keyValue, now)
	if err != nil {
		return nil, err
	}
	if key == nil {
		s.metrics.IncKeyVerified(metrics.VerifyInvalid)
		return &VerifyResult{Valid: false}, nil
	}

	if fingerprint = strings.TrimSpace(fingerprint); fingerprint != "" {
		reason, err := s.checkDevice(ctx, key.UserID, auth.HashFingerprint(fingerprint), now)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			s.metrics.IncKeyVerified(reason)
			s.logger.Info("access key refused for device",
				"user_id", key.UserID,
				"key_prefix", key.KeyPrefix(),
				"reason", reason,
			)
			return &VerifyResult{Valid: false, Reason: reason}, nil
		}
	}

	s.metrics.IncKeyVerified(metrics.VerifyValid)
	return &VerifyResult{Valid: true, UserID: key.UserID}, nil
}

// Status returns the stored keys of the given users, live or not.
func (s *KeyService) Status(ctx context.Context, userIDs []string) ([]model.AccessKeyStatus, error) {
	if len(userIDs) == 0 {
		return []model.AccessKeyStatus{}, nil
	}
	for _, id := range userIDs {
		if err := ValidateUserID(id); err != nil {
			return nil, err
		}
	}

	keys, err := s.store.GetAccessKeysByUserIDs(ctx, userIDs)
	if err != nil {
		return nil, storeError("get_access_keys", err)
	}

	now := s.now()
	statuses := make([]model.AccessKeyStatus, 0, len(keys))
	for _, k := range keys {
		statuses = append(statuses, k.ToStatus(now))
	}
	return statuses, nil
}

// ResetDevice removes the user's device binding so the next verification
// with a fingerprint binds afresh.
func (s *KeyService) ResetDevice(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if err := ValidateUserID(userID); err != nil {
		return err
	}

	if err := s.store.DeleteDeviceBinding(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrBindingNotFound) {
			return ErrNotFound
		}
		return storeError("delete_device_binding", err)
	}

	s.logger.Info("device binding reset", "user_id", userID)
	return nil
}

// getLiveKey returns nil without error when the user has no live key.
func (s *KeyService) getLiveKey(ctx context.Context, userID string, now time.Time) (*model.AccessKey, error) {
	start := time.Now()
	key, err := s.store.GetLiveAccessKey(ctx, userID, now)
	s.metrics.ObserveStoreDuration("get_live_access_key", time.Since(start))
	if err != nil {
		if errors.Is(err, repository.ErrAccessKeyNotFound) {
			return nil, nil
		}
		return nil, storeError("get_live_access_key", err)
	}
	return key, nil
}

// lookupKey consults the verify cache, then the store.
// Cache failures degrade to a store lookup.
func (s *KeyService) lookupKey(ctx context.Context, keyValue string, now time.Time) (*model.AccessKey, error) {
	if s.cache != nil {
		cached, err := s.cache.GetVerifiedKey(ctx, keyValue)
		if err != nil {
			s.logger.Warn("verify cache read failed", "error", err)
		}
		if cached != nil && cached.IsLive(now) {
			s.metrics.IncVerifyCacheHit()
			return cached, nil
		}
		s.metrics.IncVerifyCacheMiss()
	}

	start := time.Now()
	key, err := s.store.GetAccessKeyByValue(ctx, keyValue, now)
	s.metrics.ObserveStoreDuration("get_access_key_by_value", time.Since(start))
	if err != nil {
		if errors.Is(err, repository.ErrAccessKeyNotFound) {
			return nil, nil
		}
		return nil, storeError("get_access_key_by_value", err)
	}

	if s.cache != nil {
		if err := s.cache.SetVerifiedKey(ctx, key, now); err != nil {
			s.logger.Warn("verify cache write failed", "error", err)
		}
	}
	return key, nil
}

// checkDevice enforces the one-user-one-device binding. It returns a
// refusal reason, or "" when the device may use the key.
func (s *KeyService) checkDevice(ctx context.Context, userID, fingerprintHash string, now time.Time) (string, error) {
	for attempt := 0; attempt < 2; attempt++ {
		reason, decided, err := s.existingBinding(ctx, userID, fingerprintHash)
		if err != nil || decided {
			return reason, err
		}

		binding := &model.DeviceBinding{
			ID:              ulid.Make().String(),
			UserID:          userID,
			FingerprintHash: fingerprintHash,
			CreatedAt:       now,
		}
		err = s.store.BindDevice(ctx, binding)
		if err == nil {
			s.logger.Info("device bound", "user_id", userID, "binding_id", binding.ID)
			s.publish(ctx, model.EventDeviceBound, userID, now)
			return "", nil
		}
		if !errors.Is(err, repository.ErrBindingConflict) {
			return "", storeError("bind_device", err)
		}
		// Lost a first-use race: re-read and let the winner decide.
	}
	return model.ReasonDeviceInUse, nil
}

// existingBinding decides from stored bindings alone. decided is false when
// neither the user nor the fingerprint is bound yet.
func (s *KeyService) existingBinding(ctx context.Context, userID, fingerprintHash string) (reason string, decided bool, err error) {
	binding, err := s.store.GetDeviceBinding(ctx, userID)
	switch {
	case err == nil:
		if binding.Matches(fingerprintHash) {
			return "", true, nil
		}
		return model.ReasonDeviceMismatch, true, nil
	case !errors.Is(err, repository.ErrBindingNotFound):
		return "", false, storeError("get_device_binding", err)
	}

	_, err = s.store.GetDeviceBindingByFingerprint(ctx, fingerprintHash)
	switch {
	case err == nil:
		return model.ReasonDeviceInUse, true, nil
	case !errors.Is(err, repository.ErrBindingNotFound):
		return "", false, storeError("get_device_binding_by_fingerprint", err)
	}

	return "", false, nil
}

// publish is best effort: a failed publish is logged, never returned.
func (s *KeyService) publish(ctx context.Context, eventType, userID string, now time.Time) {
	if s.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := model.KeyEvent{Type: eventType, UserID: userID, OccurredAt: now}
	if err := s.events.PublishKeyEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish key event", "type", eventType, "error", err)
	}
}
