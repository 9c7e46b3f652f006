package apiv1

import (
	"errors"
	"net/http"

	"subscription-ledger/internal/domain"
	"subscription-ledger/internal/domain/format"
	"subscription-ledger/internal/infra/logging"
)

type errorBody struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Set for insufficient_balance only.
	Balance  string `json:"balance,omitempty"`
	Required string `json:"required,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// mapError picks the status and user-facing payload for err. Unknown and
// transient failures share one generic message.
func mapError(err error) (int, errorPayload) {
	var insufficient *domain.InsufficientBalanceError
	switch {
	case errors.As(err, &insufficient):
		return http.StatusPaymentRequired, errorPayload{
			Code: "insufficient_balance",
			Message: "Your balance of " + format.Amount(insufficient.Balance) +
				" points is not enough: this plan costs " + format.Amount(insufficient.Required) + " points.",
			Balance:  insufficient.Balance.String(),
			Required: insufficient.Required.String(),
		}
	case errors.Is(err, domain.ErrPlanNotFound):
		return http.StatusNotFound, errorPayload{Code: "plan_not_found", Message: "This plan does not exist."}
	case errors.Is(err, domain.ErrUserNotFound):
		return http.StatusNotFound, errorPayload{Code: "user_not_found", Message: "Your account was not found."}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorPayload{Code: "not_found", Message: "Nothing found."}
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, errorPayload{Code: "invalid_request", Message: "The request is invalid."}
	case errors.Is(err, domain.ErrDuplicateTransaction):
		return http.StatusConflict, errorPayload{Code: "duplicate", Message: "This request was already processed."}
	default:
		return http.StatusServiceUnavailable, errorPayload{Code: "unavailable", Message: "Something went wrong. Please try again."}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, p := mapError(err)
	if s.deps.Dev {
		p.Detail = err.Error()
	}
	l := logging.With(r.Context(), s.log)
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Int("status", status).Msg("request failed")
	} else {
		l.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, errorBody{Error: p})
}
