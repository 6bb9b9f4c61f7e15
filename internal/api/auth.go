package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"go.uber.org/zap"
)

type staticKey string

func (k staticKey) ValidateAPIKey(_ context.Context, key string) (bool, error) {
	if k == "" || key == "" {
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1, nil
}

// anyOf accepts a key when any validator accepts it.
type anyOf []KeyValidator

func (v anyOf) ValidateAPIKey(ctx context.Context, key string) (bool, error) {
	var firstErr error
	for _, val := range v {
		ok, err := val.ValidateAPIKey(ctx, key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	return false, firstErr
}

func authValidator(static string, db KeyValidator) KeyValidator {
	validators := anyOf{}
	if static != "" {
		validators = append(validators, staticKey(static))
	}
	if db != nil {
		validators = append(validators, db)
	}
	return validators
}

func apiKeyMiddleware(validator KeyValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			ok, err := validator.ValidateAPIKey(r.Context(), key)
			if err != nil {
				logger.Error("api key validation failed", zap.Error(err))
			}
			if !ok {
				writeError(w, http.StatusForbidden, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
