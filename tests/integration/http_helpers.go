package integration

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	internalauth "github.com/jzupan/clubmgr/internal/auth"
	"github.com/jzupan/clubmgr/internal/database"
	"github.com/jzupan/clubmgr/internal/handlers"
	"github.com/jzupan/clubmgr/internal/repositories"
	"github.com/jzupan/clubmgr/internal/routes"
	"github.com/jzupan/clubmgr/internal/services"
	"github.com/jzupan/clubmgr/internal/session"
	pkgauth "github.com/jzupan/clubmgr/pkg/auth"
	pkghttp "github.com/jzupan/clubmgr/pkg/http"
)

// Test-fixture tuning. The failure cap matches production; the timing delay is
// zeroed so tests do not sleep.
const (
	TestMaxFailures = 10
	TestRateWindow  = 15 * time.Minute
	TestDeviceTTL   = 30 * 24 * time.Hour
	TestIssuer      = "ClubMgrTest"
)

// TestServer wraps httptest.Server with the full application wired to a real
// database
type TestServer struct {
	Server         *httptest.Server
	DB             *database.DB
	SessionManager *session.Manager
	Users          *repositories.UserRepository
	Devices        *repositories.TrustedDeviceRepository
	Attempts       *repositories.LoginAttemptRepository
	AuditLog       *repositories.AuditLogRepository
}

// NewTestServer builds the production router against the given database
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	userRepo := repositories.NewUserRepository(db)
	attemptRepo := repositories.NewLoginAttemptRepository(db)
	deviceRepo := repositories.NewTrustedDeviceRepository(db)
	auditRepo := repositories.NewAuditLogRepository(db)

	sessionManager := session.NewManager(30*time.Minute, time.Hour, logger)

	auditService := services.NewAuditService(auditRepo, logger)
	rateLimitService := services.NewRateLimitService(attemptRepo, services.RateLimitConfig{
		MaxFailures: TestMaxFailures,
		Window:      TestRateWindow,
	}, logger)
	timingDelay := internalauth.NewTimingDelay(0, 0)
	totpManager := internalauth.NewTOTPManager(TestIssuer)
	verifier := services.BcryptVerifier{}

	loginService := services.NewLoginService(
		userRepo, deviceRepo, rateLimitService, auditService, sessionManager,
		verifier, totpManager, timingDelay, TestDeviceTTL, logger,
	)
	twoFactorService := services.NewTwoFactorService(
		userRepo, totpManager, totpManager, auditService, logger,
	)
	userService := services.NewUserService(userRepo, verifier, auditService,
		bcrypt.MinCost, pkgauth.MinPasswordLen, logger)

	cookieConfig := internalauth.CookieConfig{
		SessionName: "clubmgr_session",
		DeviceName:  "_2fa_device",
		SessionTTL:  time.Hour,
	}
	ipConfig := &pkghttp.IPConfig{TrustedProxies: []string{}}

	renderer, err := handlers.NewRenderer(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize renderer: %w", err)
	}

	authHandler := handlers.NewAuthHandler(loginService, renderer, cookieConfig, ipConfig, TestDeviceTTL)
	profileHandler := handlers.NewProfileHandler(userService, twoFactorService, renderer, cookieConfig, ipConfig)
	sessionMW := session.NewMiddleware(sessionManager, cookieConfig)

	router := chi.NewRouter()
	routes.RegisterRoutes(router, routes.Config{
		AuthHandler:    authHandler,
		ProfileHandler: profileHandler,
		SessionMW:      sessionMW,
		DB:             db,
		FloodRPM:       10000,
		FloodHandler:   authHandler.Throttled,
	})

	return &TestServer{
		Server:         httptest.NewServer(router),
		DB:             db,
		SessionManager: sessionManager,
		Users:          userRepo,
		Devices:        deviceRepo,
		Attempts:       attemptRepo,
		AuditLog:       auditRepo,
	}, nil
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// NewClient returns an HTTP client with its own cookie jar that does not
// follow redirects, so tests can assert on Location headers.
func (ts *TestServer) NewClient() *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Get fetches a page with the given client
func (ts *TestServer) Get(client *http.Client, path string) (*http.Response, error) {
	return client.Get(ts.Server.URL + path)
}

// PostForm submits a form with the given client
func (ts *TestServer) PostForm(client *http.Client, path string, form url.Values) (*http.Response, error) {
	return client.PostForm(ts.Server.URL+path, form)
}

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

// FetchCSRF loads a page and extracts the CSRF token from its form
func (ts *TestServer) FetchCSRF(client *http.Client, path string) (string, error) {
	resp, err := ts.Get(client, path)
	if err != nil {
		return "", err
	}
	body, err := ReadBody(resp)
	if err != nil {
		return "", err
	}

	match := csrfPattern.FindStringSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("no csrf token found in %s", path)
	}
	return match[1], nil
}

// ReadBody drains and closes a response body
func ReadBody(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// BodyContains reports whether the response body includes the substring
func BodyContains(resp *http.Response, substr string) (bool, error) {
	body, err := ReadBody(resp)
	if err != nil {
		return false, err
	}
	return strings.Contains(body, substr), nil
}
