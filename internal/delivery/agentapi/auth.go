package agentapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/solitraderbusiness/ClanTrader-sub000/internal/domain"
)

type contextKey string

const accountContextKey contextKey = "agent_account"

// AuthMiddleware authenticates the EA bridge. The bearer token is
// "<accountID>.<apiKey>"; the key is compared against the stored bcrypt
// hash so a database leak never exposes live keys.
func AuthMiddleware(accounts domain.AgentAccountRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, http.StatusUnauthorized, "Missing or malformed bearer token")
				return
			}

			idx := strings.IndexByte(parts[1], '.')
			if idx <= 0 {
				writeError(w, http.StatusUnauthorized, "Malformed agent credentials")
				return
			}

			accountID, err := uuid.Parse(parts[1][:idx])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Malformed agent credentials")
				return
			}

			account, err := accounts.GetByID(r.Context(), accountID)
			if err != nil || account == nil {
				writeError(w, http.StatusUnauthorized, "Unknown agent account")
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(account.KeyHash), []byte(parts[1][idx+1:])); err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid agent key")
				return
			}

			ctx := context.WithValue(r.Context(), accountContextKey, account)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// accountFrom extracts the authenticated account placed by AuthMiddleware.
func accountFrom(ctx context.Context) (*domain.AgentAccount, bool) {
	account, ok := ctx.Value(accountContextKey).(*domain.AgentAccount)
	return account, ok
}
