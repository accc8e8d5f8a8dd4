// Package httpapi exposes the engine as a JSON API on a chi router.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrEthical07/twostep"
	"github.com/MrEthical07/twostep/jwt"
	"github.com/MrEthical07/twostep/middleware"
)

// Service is the engine surface the handlers call. *twostep.Engine
// implements it.
type Service interface {
	Signup(ctx context.Context, req twostep.SignupRequest) (*twostep.SignupResult, error)
	LoginInitiate(ctx context.Context, email, password string) (*twostep.LoginResult, error)
	LoginComplete(ctx context.Context, challengeID, code string) (*twostep.LoginResult, error)
	VerifyEmail(ctx context.Context, email, code string) error
	VerifyPhone(ctx context.Context, email, code string) error
	VerifyTOTPSetup(ctx context.Context, email, code string) error
	ChangePassword(ctx context.Context, email, current, next, confirm string) error
	ChangeTwoFactorMethod(ctx context.Context, req twostep.ChangeTwoFactorRequest) (*twostep.TwoFactorChange, error)
	QRPayload(ctx context.Context, email string) (*twostep.Provisioning, error)
	ResendCode(ctx context.Context, email string, codeType twostep.CodeType) error
	Logout(ctx context.Context, token string) error
	Profile(ctx context.Context, email string) (*twostep.Profile, error)
	Authenticate(ctx context.Context, token string) (*jwt.Claims, error)
}

// Options tunes the router. Zero values fall back to defaults.
type Options struct {
	Logger *slog.Logger
	// Metrics, when set, is served at GET /metrics.
	Metrics http.Handler

	// RequestsPerSecond and Burst bound each client IP on /api/auth.
	// A negative RequestsPerSecond disables the limiter.
	RequestsPerSecond float64
	Burst             int
	// ClientIdleTTL is how long an idle IP keeps its bucket.
	ClientIdleTTL time.Duration
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.RequestsPerSecond == 0 {
		o.RequestsPerSecond = 5
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	if o.ClientIdleTTL <= 0 {
		o.ClientIdleTTL = 10 * time.Minute
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 64 << 10
	}
}

type handler struct {
	svc     Service
	logger  *slog.Logger
	maxBody int64
}

// NewRouter builds the HTTP surface for svc.
func NewRouter(svc Service, opts Options) http.Handler {
	opts.defaults()
	h := &handler{svc: svc, logger: opts.Logger, maxBody: opts.MaxBodyBytes}

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestContext)
	r.Use(recoverer(opts.Logger))
	r.Use(accessLog(opts.Logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/auth", func(r chi.Router) {
		if opts.RequestsPerSecond > 0 {
			r.Use(newIPLimiter(opts.RequestsPerSecond, opts.Burst, opts.ClientIdleTTL).middleware)
		}

		r.Post("/signup", h.signup)
		r.Post("/login", h.login)
		r.Post("/login/verify", h.loginVerify)
		r.Post("/verify-email", h.verifyEmail)
		r.Post("/verify-phone", h.verifyPhone)
		r.Post("/resend-code", h.resendCode)
		r.Post("/logout", h.logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(svc))
			r.Post("/verify-totp", h.verifyTOTP)
			r.Post("/change-password", h.changePassword)
			r.Post("/2fa", h.changeTwoFactor)
			r.Get("/2fa/qr", h.qrPayload)
			r.Get("/me", h.profile)
		})
	})

	return r
}
