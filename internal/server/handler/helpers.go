package handler

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/authensus/marketd/internal/domain"
)

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a ledger error to an HTTP status and includes its
// stable code and symbol in the response body so clients can branch on
// them.
func writeDomainError(w http.ResponseWriter, err error) {
	var coded *domain.Error
	if errors.As(err, &coded) {
		writeJSON(w, statusForError(err), map[string]any{
			"error":  err.Error(),
			"code":   coded.Code,
			"symbol": coded.Symbol,
		})
		return
	}
	writeError(w, statusForError(err), err.Error())
}

// statusForError picks the HTTP status for a ledger error: 404 for missing
// records, 403 for authorization failures, 409 for state conflicts, and 400
// for rejected input.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotAdmin),
		errors.Is(err, domain.ErrSignerNotAuthority),
		errors.Is(err, domain.ErrInvalidProof),
		errors.Is(err, domain.ErrWrongSigner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrMarketAlreadyExists),
		errors.Is(err, domain.ErrFacetAlreadyResolved),
		errors.Is(err, domain.ErrStakeAlreadySettled),
		errors.Is(err, domain.ErrAlreadyInitialised),
		errors.Is(err, domain.ErrMintAlreadyInitialised),
		errors.Is(err, domain.ErrMarketNotOpen),
		errors.Is(err, domain.ErrMarketNotClosed),
		errors.Is(err, domain.ErrMarketNotResolved),
		errors.Is(err, domain.ErrTreasuryNotInitialised),
		errors.Is(err, domain.ErrMintNotInitialised),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrBalancesDisagree),
		errors.Is(err, domain.ErrTooManyStakes),
		errors.Is(err, domain.ErrLockHeld):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// parseListOpts extracts standard pagination parameters from the query string.
// Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// parseHexAddress parses a 20-byte hex address path or body parameter.
func parseHexAddress(s string) (common.Address, bool) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// parseHexHash parses a 32-byte hex identity such as a market or stake
// address.
func parseHexHash(s string) (common.Hash, bool) {
	s = strings.TrimSpace(s)
	trimmed := strings.TrimPrefix(s, "0x")
	if len(trimmed) != 64 {
		return common.Hash{}, false
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return common.Hash{}, false
	}
	return common.HexToHash(s), true
}

// decodeBody decodes a JSON request body into dst, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// logHandler is a convenience to attach slog fields in handler code.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
