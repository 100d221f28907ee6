package httpapi

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/MrEthical07/goOTP/middleware"
)

const defaultMaxBodyBytes = 64 << 10

// Options configures Handler. The zero value is usable.
type Options struct {
	Logger *slog.Logger

	// LoginRetryAfter is advertised in Retry-After on throttled logins.
	// Set it to the engine's login window.
	LoginRetryAfter time.Duration

	// TrustProxyHeaders takes the client IP from X-Forwarded-For or
	// X-Real-IP. Enable only behind a proxy that overwrites them.
	TrustProxyHeaders bool

	MaxBodyBytes int64
}

// Handler serves the engine's JSON API.
type Handler struct {
	engine          *goOTP.Engine
	logger          *slog.Logger
	loginRetryAfter time.Duration
	maxBodyBytes    int64
	trustProxy      bool
}

// New returns a Handler over engine.
func New(engine *goOTP.Engine, opts Options) *Handler {
	h := &Handler{
		engine:          engine,
		logger:          opts.Logger,
		loginRetryAfter: opts.LoginRetryAfter,
		maxBodyBytes:    opts.MaxBodyBytes,
		trustProxy:      opts.TrustProxyHeaders,
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if h.loginRetryAfter <= 0 {
		h.loginRetryAfter = goOTP.DefaultConfig().Login.Window
	}
	if h.maxBodyBytes <= 0 {
		h.maxBodyBytes = defaultMaxBodyBytes
	}
	return h
}

// Routes builds the chi router.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/", httpapi.New(engine, httpapi.Options{Logger: logger}).Routes())
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	if h.trustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(h.clientIP)

	guardErr := func(w http.ResponseWriter, r *http.Request, err error) {
		h.writeError(w, r, err)
	}

	r.Route("/auth", func(auth chi.Router) {
		auth.Post("/signup", h.requestSignup)
		auth.Post("/signup/verify", h.verifySignup)
		auth.Post("/signup/resend", h.resendSignup)

		auth.Post("/login", h.login)
		auth.Post("/logout", h.logout)

		auth.Route("/password", func(pw chi.Router) {
			pw.Post("/forgot", h.requestReset)
			pw.Post("/resend", h.resendReset)
			pw.Post("/verify", h.verifyReset)
			pw.Post("/reset", h.completeReset)
		})

		auth.With(middleware.GuardWith(h.engine, "", guardErr)).Get("/me", h.me)
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Post("/login", h.loginAdmin)
		admin.With(middleware.GuardWith(h.engine, goOTP.RoleAdmin, guardErr)).Get("/me", h.me)
	})

	return r
}

// clientIP records the caller address for audit events and the per-IP
// login throttle.
func (h *Handler) clientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if ip != "" {
			r = r.WithContext(goOTP.WithClientIP(r.Context(), ip))
		}
		next.ServeHTTP(w, r)
	})
}
