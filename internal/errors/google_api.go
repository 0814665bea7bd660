package errors

import (
	"context"
	"errors"
	"net/http"

	"github.com/dl-alexandre/gdrv-gateway/internal/logging"
	"github.com/dl-alexandre/gdrv-gateway/internal/types"
	"github.com/dl-alexandre/gdrv-gateway/internal/utils"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// ClassifyGoogleAPIError converts an error returned by a Google API call into
// an AppError. Backend errors keep the status and reason Drive reported so
// the gateway can relay them unchanged.
func ClassifyGoogleAPIError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	if err == nil {
		return nil
	}
	if _, ok := utils.AsAppError(err); ok {
		return err
	}
	if reqCtx == nil {
		reqCtx = &types.RequestContext{}
	}

	if errors.Is(err, context.Canceled) {
		logger.Debug("Request cancelled",
			logging.F("traceId", reqCtx.TraceID),
			logging.F("service", service),
		)
		return utils.WrapAppError(utils.NewGatewayError(utils.ErrCodeCancelled, "request cancelled").
			WithContext("traceId", reqCtx.TraceID).
			Build(), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("Request timed out",
			logging.F("traceId", reqCtx.TraceID),
			logging.F("service", service),
		)
		return utils.WrapAppError(utils.NewGatewayError(utils.ErrCodeTimeout, "backend request timed out").
			WithHTTPStatus(http.StatusGatewayTimeout).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build(), err)
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		logger.Error("Credential refresh failed",
			logging.F("error", err.Error()),
			logging.F("traceId", reqCtx.TraceID),
		)
		return utils.WrapAppError(utils.NewGatewayError(utils.ErrCodeAuthRequired, "service credential could not be refreshed").
			WithHTTPStatus(http.StatusInternalServerError).
			WithContext("traceId", reqCtx.TraceID).
			Build(), err)
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		logger.Error("Non-API error",
			logging.F("error", err.Error()),
			logging.F("traceId", reqCtx.TraceID),
		)
		return utils.WrapAppError(utils.NewGatewayError(utils.ErrCodeNetworkError, err.Error()).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build(), err)
	}

	var code string
	var retryable bool

	switch apiErr.Code {
	case 400:
		code = utils.ErrCodeInvalidArgument
	case 401:
		code = utils.ErrCodeAuthExpired
	case 403:
		code = utils.ErrCodePermissionDenied
		for _, e := range apiErr.Errors {
			switch e.Reason {
			case "storageQuotaExceeded", "dailyLimitExceeded":
				code = utils.ErrCodeQuotaExceeded
			case "sharingRateLimitExceeded", "userRateLimitExceeded", "rateLimitExceeded":
				code = utils.ErrCodeRateLimited
				retryable = true
			}
		}
	case 404:
		code = utils.ErrCodeFileNotFound
	case 416:
		code = utils.ErrCodeInvalidArgument
	case 429:
		code = utils.ErrCodeRateLimited
		retryable = true
	case 500, 502, 503, 504:
		code = utils.ErrCodeUpstreamError
		retryable = true
	default:
		code = utils.ErrCodeUnknown
		retryable = apiErr.Code >= 500
	}

	reason := http.StatusText(apiErr.Code)
	if len(apiErr.Errors) > 0 && apiErr.Errors[0].Reason != "" {
		reason = apiErr.Errors[0].Reason
	}

	message := apiErr.Message
	if message == "" {
		message = reason
	}

	logger.Error("API error classified",
		logging.F("httpStatus", apiErr.Code),
		logging.F("errorCode", code),
		logging.F("reason", reason),
		logging.F("message", message),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	builder := utils.NewGatewayError(code, message).
		WithHTTPStatus(apiErr.Code).
		WithReason(reason).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)

	switch code {
	case utils.ErrCodeFileNotFound:
		if len(reqCtx.InvolvedFileIDs) > 0 {
			builder.WithContext("fileId", reqCtx.InvolvedFileIDs[0])
		}
		if reqCtx.FolderID != "" {
			builder.WithContext("folderId", reqCtx.FolderID)
		}
	case utils.ErrCodeAuthExpired, utils.ErrCodePermissionDenied:
		builder.WithContext("suggestedAction", "share the folder with the service account")
	}

	return utils.WrapAppError(builder.Build(), err)
}
