package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/aegisproof/aegis/internal/metering"
	"github.com/aegisproof/aegis/pkg/handlers"
)

type principalKey struct{}

// Principal returns the authenticated principal from the request context,
// or nil outside the auth middleware.
func Principal(ctx context.Context) *metering.Principal {
	p, _ := ctx.Value(principalKey{}).(*metering.Principal)
	return p
}

// authenticator resolves request credentials to a metering principal.
// API keys arrive via X-API-Key or as a bearer token; when an OIDC issuer
// is configured, bearer tokens are verified as reviewer identity tokens
// instead.
type authenticator struct {
	metering metering.System
	logger   *slog.Logger
	issuer   string
	clientID string

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

func newAuthenticator(sys metering.System, issuer, clientID string, logger *slog.Logger) *authenticator {
	return &authenticator{
		metering: sys,
		logger:   logger.With("handler", "auth"),
		issuer:   issuer,
		clientID: clientID,
	}
}

// Middleware authenticates every request and stores the principal in the
// request context. Unauthenticated requests receive 401.
func (a *authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.resolve(r)
			if err != nil {
				handlers.RespondError(w, a.logger, metering.MapHTTPStatus(err), err)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *authenticator) resolve(r *http.Request) (*metering.Principal, error) {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return a.metering.Authenticate(r.Context(), key)
	}

	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		if a.issuer != "" {
			return a.bearerPrincipal(r.Context(), token)
		}
		return a.metering.Authenticate(r.Context(), token)
	}

	return nil, metering.ErrUnauthorized
}

// bearerPrincipal verifies an OIDC identity token and maps it to a
// reviewer principal. Reviewer identities are not metered.
func (a *authenticator) bearerPrincipal(ctx context.Context, token string) (*metering.Principal, error) {
	verifier, err := a.tokenVerifier(ctx)
	if err != nil {
		return nil, err
	}

	idToken, err := verifier.Verify(ctx, token)
	if err != nil {
		a.logger.Warn("bearer verification failed", "error", err)
		return nil, metering.ErrUnauthorized
	}

	var identity struct {
		Email string `json:"email"`
	}
	_ = idToken.Claims(&identity)

	name := identity.Email
	if name == "" {
		name = idToken.Subject
	}

	return &metering.Principal{
		Key:  "oidc:" + idToken.Subject,
		Name: name,
		Role: metering.RoleReviewer,
		Tier: metering.TierEnterprise,
	}, nil
}

func (a *authenticator) tokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.verifier == nil {
		provider, err := oidc.NewProvider(ctx, a.issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery for %s: %w", a.issuer, err)
		}
		a.verifier = provider.Verifier(&oidc.Config{ClientID: a.clientID})
	}

	return a.verifier, nil
}

// requireReviewer restricts a route to principals with review authority.
func (a *authenticator) requireReviewer(next http.HandlerFunc) http.HandlerFunc {
	return a.require(next, (*metering.Principal).CanReview)
}

// requireVoter restricts a route to model and reviewer principals.
func (a *authenticator) requireVoter(next http.HandlerFunc) http.HandlerFunc {
	return a.require(next, (*metering.Principal).CanVote)
}

func (a *authenticator) require(next http.HandlerFunc, allowed func(*metering.Principal) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := Principal(r.Context())
		if p == nil || !allowed(p) {
			handlers.RespondError(
				w, a.logger,
				http.StatusForbidden, metering.ErrForbidden,
			)
			return
		}
		next(w, r)
	}
}

// metered enforces the principal's daily quota before a claim submission
// and counts accepted submissions afterward. Pro-tier overage surfaces as
// 402 with X-Price and X-Currency headers.
func (a *authenticator) metered(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := Principal(r.Context())
		if p == nil {
			handlers.RespondError(
				w, a.logger,
				http.StatusUnauthorized, metering.ErrUnauthorized,
			)
			return
		}

		if err := a.metering.Check(r.Context(), p); err != nil {
			var payment *metering.PaymentRequiredError
			if errors.As(err, &payment) {
				w.Header().Set("X-Price", payment.Price)
				w.Header().Set("X-Currency", payment.Currency)
			}
			handlers.RespondError(w, a.logger, metering.MapHTTPStatus(err), err)
			return
		}

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)

		if recorder.status < http.StatusBadRequest {
			a.metering.RecordUsage(r.Context(), p)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
