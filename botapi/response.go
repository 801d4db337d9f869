package botapi

import (
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/berkus/teloxide/errs"
)

// apiResponse is the envelope every API call answers with.
type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *responseParameters `json:"parameters,omitempty"`
}

// responseParameters carries the remote's recovery hints on failures.
type responseParameters struct {
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	RetryAfter      int   `json:"retry_after,omitempty"`
}

// classify maps a failed API response onto the error taxonomy. The envelope
// error_code wins over the HTTP status when both are present.
func classify(op string, httpStatus int, env apiResponse) error {
	status := env.ErrorCode
	if status == 0 {
		status = httpStatus
	}
	opts := []errs.Option{errs.WithHTTP(status)}
	if env.Description != "" {
		opts = append(opts, errs.WithRawMessage(env.Description))
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusNotFound:
		return errs.New(op, errs.CodeAuth,
			append(opts, errs.WithMessage("credentials rejected"))...)
	case status == http.StatusBadRequest:
		return errs.New(op, errs.CodeInvalid,
			append(opts, errs.WithMessage("request rejected"))...)
	case status == http.StatusConflict:
		// Another getUpdates consumer or webhook owns this bot.
		return errs.New(op, errs.CodeConflict,
			append(opts, errs.WithMessage("another consumer is active"))...)
	case status == http.StatusTooManyRequests:
		if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
			opts = append(opts, errs.WithRetryAfter(time.Duration(env.Parameters.RetryAfter)*time.Second))
		}
		return errs.New(op, errs.CodeRateLimited,
			append(opts, errs.WithMessage("throttled"))...)
	case status >= 500:
		return errs.New(op, errs.CodeRemote,
			append(opts, errs.WithMessage("remote failure"))...)
	default:
		return errs.New(op, errs.CodeRemote,
			append(opts, errs.WithMessage("request failed"))...)
	}
}
