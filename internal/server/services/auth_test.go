package services

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/cargohold/internal/auth"
	"github.com/dmitrijs2005/cargohold/internal/cryptox"
	"github.com/dmitrijs2005/cargohold/internal/dbx"
	"github.com/dmitrijs2005/cargohold/internal/server/config"
	"github.com/dmitrijs2005/cargohold/internal/server/models"
	"github.com/dmitrijs2005/cargohold/internal/server/sessions"
)

func newAuthService(pool *dbx.RWPool, m *fakeRepoManager) *AuthService {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	recorder := NewEventRecorder(pool, m)
	return NewAuthService(pool, m, recorder, cfg)
}

// issueTestToken creates a verifiable token secret and registers its
// credentials with the fake repository.
func issueTestToken(t *testing.T, repo *fakeTokensRepo, marker string, id int64, userID int64, canWrite bool, canAdmin bool) string {
	t.Helper()
	secret, err := cryptox.MakeTokenSecret(marker, id)
	if err != nil {
		t.Fatalf("MakeTokenSecret error: %v", err)
	}
	salt, err := cryptox.NewSalt()
	if err != nil {
		t.Fatalf("NewSalt error: %v", err)
	}
	repo.creds[id] = &models.TokenCredentials{
		ID:       id,
		UserID:   userID,
		Hash:     cryptox.HashTokenSecret(secret, salt),
		Salt:     salt,
		CanWrite: canWrite,
		CanAdmin: canAdmin,
	}
	return secret
}

func TestAuthenticate_EmptyCredential(t *testing.T) {
	pool, _, db := newSQLMockPool(t)
	defer db.Close()

	s := newAuthService(pool, newFakeRepoManager())

	_, err := s.Authenticate(context.Background(), "")
	if got := apiStatus(t, err); got != 401 {
		t.Fatalf("want 401, got %d: %v", got, err)
	}
}

func TestAuthenticateToken_UserToken(t *testing.T) {
	pool, mock, db := newSQLMockPool(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := newFakeRepoManager()
	m.u.add(models.RegistryUser{ID: 5, IsActive: true, Email: "alice@example.com", Login: "alice"})
	secret := issueTestToken(t, m.t, "u", 11, 5, true, false)
	s := newAuthService(pool, m)

	authn, err := s.Authenticate(context.Background(), secret)
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}

	uid, err := authn.UID()
	if err != nil || uid != 5 {
		t.Fatalf("unexpected principal: %+v", authn.Principal)
	}
	if !authn.CanWrite || authn.CanAdmin {
		t.Fatalf("capabilities must come from the token: %+v", authn)
	}

	// Successful use is buffered, not written.
	if len(s.recorder.tokenUses) != 1 || s.recorder.tokenUses[0].TokenID != 11 {
		t.Fatalf("token use was not recorded: %+v", s.recorder.tokenUses)
	}
}

func TestAuthenticateToken_GlobalToken(t *testing.T) {
	pool, mock, db := newSQLMockPool(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := newFakeRepoManager()
	secret := issueTestToken(t, m.t, "g", 2, 0, true, true)
	s := newAuthService(pool, m)

	authn, err := s.Authenticate(context.Background(), secret)
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}

	if _, ok := authn.Principal.(auth.ServicePrincipal); !ok {
		t.Fatalf("want a service principal, got %+v", authn.Principal)
	}
	if _, err := authn.UID(); err == nil {
		t.Fatalf("a service principal has no uid")
	}
}

func TestAuthenticateToken_WrongSecret(t *testing.T) {
	pool, mock, db := newSQLMockPool(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	m := newFakeRepoManager()
	m.u.add(models.RegistryUser{ID: 5, IsActive: true, Email: "alice@example.com", Login: "alice"})
	issueTestToken(t, m.t, "u", 11, 5, true, false)

	// A different secret with the same embedded id must not verify.
	forged, err := cryptox.MakeTokenSecret("u", 11)
	if err != nil {
		t.Fatalf("MakeTokenSecret error: %v", err)
	}

	s := newAuthService(pool, m)
	_, err = s.Authenticate(context.Background(), forged)
	if got := apiStatus(t, err); got != 401 {
		t.Fatalf("want 401, got %d: %v", got, err)
	}
	if len(s.recorder.tokenUses) != 0 {
		t.Fatalf("failed authentication must not be recorded")
	}
}

func TestAuthenticateToken_InactiveUser(t *testing.T) {
	pool, mock, db := newSQLMockPool(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	m := newFakeRepoManager()
	m.u.add(models.RegistryUser{ID: 5, IsActive: false, Email: "alice@example.com", Login: "alice"})
	secret := issueTestToken(t, m.t, "u", 11, 5, true, false)
	s := newAuthService(pool, m)

	_, err := s.Authenticate(context.Background(), secret)
	if got := apiStatus(t, err); got != 401 {
		t.Fatalf("want 401, got %d: %v", got, err)
	}
}

func TestAuthenticateToken_Malformed(t *testing.T) {
	pool, _, db := newSQLMockPool(t)
	defer db.Close()

	s := newAuthService(pool, newFakeRepoManager())

	_, err := s.Authenticate(context.Background(), "cgh_zzz_not-a-token")
	if got := apiStatus(t, err); got != 401 {
		t.Fatalf("want 401, got %d: %v", got, err)
	}
}

func TestAuthenticateSession_ResolvesActiveUser(t *testing.T) {
	pool, mock, db := newSQLMockPool(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	m := newFakeRepoManager()
	m.u.add(models.RegistryUser{ID: 5, IsActive: true, Email: "alice@example.com", Login: "alice"})
	s := newAuthService(pool, m)

	token, err := sessions.GenerateToken(5, "alice@example.com", s.secretKey, s.sessionValidity)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	authn, err := s.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	uid, err := authn.UID()
	if err != nil || uid != 5 {
		t.Fatalf("unexpected principal: %+v", authn.Principal)
	}
	// Sessions carry full capability.
	if !authn.CanWrite || !authn.CanAdmin {
		t.Fatalf("unexpected capabilities: %+v", authn)
	}
}

func TestAuthenticateSession_DeactivatedUser(t *testing.T) {
	pool, mock, db := newSQLMockPool(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	m := newFakeRepoManager()
	m.u.add(models.RegistryUser{ID: 5, IsActive: false, Email: "alice@example.com", Login: "alice"})
	s := newAuthService(pool, m)

	token, err := sessions.GenerateToken(5, "alice@example.com", s.secretKey, s.sessionValidity)
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = s.Authenticate(context.Background(), token)
	if got := apiStatus(t, err); got != 401 {
		t.Fatalf("want 401, got %d: %v", got, err)
	}
}

func TestIssueSession_RoundTrips(t *testing.T) {
	pool, mock, db := newSQLMockPool(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectCommit()

	m := newFakeRepoManager()
	m.u.add(models.RegistryUser{ID: 5, IsActive: true, Email: "alice@example.com", Login: "alice"})
	s := newAuthService(pool, m)

	token, err := s.IssueSession(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("IssueSession error: %v", err)
	}

	authn, err := s.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	email, err := authn.Email()
	if err != nil || email != "alice@example.com" {
		t.Fatalf("unexpected identity: %v %q", err, email)
	}
}
