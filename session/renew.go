package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/flightcache"
)

// loadCredential picks up a credential persisted by another session so the
// first request does not have to renew. It reports whether the lookup is
// settled; a failed one is tried again by the next request.
func (s *Session) loadCredential(ctx context.Context) bool {
	if s.backend == nil || s.Credential() != "" {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	cred, err := s.persisted(ctx)
	if err != nil {
		s.log.Warn("loading persisted credential failed", flightcache.Fields{"session": s.name, "err": err})
		return false
	}
	if cred != "" {
		s.setCredential(cred)
	}
	return true
}

// renew replaces stale with a fresh credential. Concurrent callers share one
// renewal; a caller whose stale credential was already replaced returns at once.
func (s *Session) renew(ctx context.Context, stale string) error {
	_, err, _ := s.renewals.Do("renew", func() (any, error) {
		if cur := s.Credential(); cur != stale {
			return nil, nil
		}
		if s.backend == nil {
			return nil, s.renewLocally(ctx)
		}
		return nil, s.renewShared(ctx, stale)
	})
	return err
}

func (s *Session) renewLocally(ctx context.Context) error {
	cred, err := s.obtain(ctx)
	if err != nil {
		return err
	}
	s.setCredential(cred)
	return nil
}

// renewShared runs the renew protocol against the backend. The lock holder
// renews, persists the credential and leaves a done marker. Everyone else
// waits until the persisted credential is no longer stale; a done marker
// left by an earlier renewal says nothing about this one.
func (s *Session) renewShared(ctx context.Context, stale string) error {
	if ok, err := s.adoptPersisted(ctx, stale); err != nil || ok {
		return err
	}

	identity := uuid.NewString()
	deadline := time.Now().Add(s.renewWait)
	waiting := false
	for {
		granted, err := s.backend.RequestRenew(ctx, s.lockKey(), identity, s.lease)
		if err != nil {
			return fmt.Errorf("session %s: renew lock: %w", s.name, err)
		}
		if granted {
			return s.renewHolding(ctx, stale, identity)
		}
		if !waiting {
			waiting = true
			s.log.Debug("waiting for another process to renew", flightcache.Fields{"session": s.name})
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: renewal by another process did not finish within %v", ErrNotAuthenticated, s.renewWait)
		}
		t := time.NewTimer(min(s.poll, remaining))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}

		if ok, err := s.adoptPersisted(ctx, stale); err != nil || ok {
			return err
		}
	}
}

// renewHolding renews under the lock held as identity. The holder checks
// once more for a credential persisted just before it got the lock.
func (s *Session) renewHolding(ctx context.Context, stale, identity string) error {
	defer func() {
		if err := s.backend.FinishRenew(context.WithoutCancel(ctx), s.lockKey(), identity); err != nil {
			s.log.Warn("finish renew failed", flightcache.Fields{"session": s.name, "err": err})
		}
	}()

	if ok, err := s.adoptPersisted(ctx, stale); err != nil || ok {
		return err
	}

	cred, err := s.obtain(ctx)
	if err != nil {
		return err
	}
	s.setCredential(cred)

	if err := s.backend.Save(ctx, s.credentialsKey(), []byte(cred), s.credTTL); err != nil {
		return fmt.Errorf("session %s: persist credential: %w", s.name, err)
	}
	if err := s.backend.Save(ctx, s.doneKey(), []byte(identity), s.doneTTL); err != nil {
		return fmt.Errorf("session %s: mark renewal done: %w", s.name, err)
	}
	return nil
}

// adoptPersisted switches to the persisted credential when it differs from
// stale.
func (s *Session) adoptPersisted(ctx context.Context, stale string) (bool, error) {
	cred, err := s.persisted(ctx)
	if err == nil && cred != "" && cred == stale {
		// the local copy may predate a save the invalidation channel has not delivered yet
		_ = s.backend.Clear(ctx, s.credentialsKey())
		cred, err = s.persisted(ctx)
	}
	if err != nil {
		return false, err
	}
	if cred == "" || cred == stale {
		return false, nil
	}
	s.setCredential(cred)
	return true, nil
}

func (s *Session) persisted(ctx context.Context) (string, error) {
	p, ok, err := s.backend.Get(ctx, s.credentialsKey())
	if err != nil {
		return "", fmt.Errorf("session %s: load credential: %w", s.name, err)
	}
	if !ok {
		return "", nil
	}
	return p.String(), nil
}

// obtain calls the Renewer and reports the outcome.
func (s *Session) obtain(ctx context.Context) (string, error) {
	cred, err := s.renewer.Renew(ctx)
	switch {
	case err != nil:
		err = fmt.Errorf("%w: %s: %w", ErrNotAuthenticated, s.name, err)
	case cred == "":
		err = fmt.Errorf("%w: %s: renewal declined", ErrNotAuthenticated, s.name)
	}
	s.hooks.SessionRenewed(s.name, err)
	if err != nil {
		s.log.Warn("credential renewal failed", flightcache.Fields{"session": s.name, "err": err})
		return "", err
	}
	s.log.Info("credential renewed", flightcache.Fields{"session": s.name})
	return cred, nil
}
