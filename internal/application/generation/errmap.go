package generation

import (
	"context"
	stderrors "errors"
	"net"
	"strings"

	"comicforge-api/pkg/errors"
)

// MapError 把编排过程抛出的任意错误归一为对外的 AppError。
// 已归一的错误原样透传，提供商错误按归类映射，
// 基础设施连接类错误收敛为 503，其余一律 500 且不泄露原始文案。
func MapError(err error) *errors.AppError {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var provErr *ProviderCallError
	if stderrors.As(err, &provErr) {
		return mapProviderError(provErr)
	}

	if stderrors.Is(err, ErrNoProviders) {
		return errors.Wrap(err, errors.CodeInternalError, "no generation providers available")
	}

	if isConnectionError(err) {
		return errors.Wrap(err, errors.CodeServiceUnavailable, "a backing service is temporarily unavailable, please retry")
	}

	return errors.Wrap(err, errors.CodeInternalError, "generation failed, please retry")
}

func mapProviderError(e *ProviderCallError) *errors.AppError {
	switch e.Kind {
	case ProviderErrInvalidInput:
		return errors.New(errors.CodeInvalidParam, "prompt or reference assets were rejected, adjust the request and retry").WithError(e)
	case ProviderErrContentPolicy:
		return errors.New(errors.CodeContentPolicy, "the prompt violates the content policy").WithError(e)
	case ProviderErrCreditLimit:
		return errors.New(errors.CodeProviderCredit, "image generation credit is exhausted, please top up").WithError(e)
	default:
		appErr := errors.New(errors.CodeProviderError, e.Message).WithError(e)
		// 上游状态码透传，便于调用方排障；传输层失败没有状态码，落回 502
		if e.StatusCode >= 400 {
			appErr = appErr.WithStatus(e.StatusCode)
		}
		return appErr
	}
}

// isConnectionError 识别数据库/缓存等依赖的连接层失败特征
func isConnectionError(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	for _, sig := range connectionSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

var connectionSignatures = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"connection pool timeout",
	"redis: client is closed",
	"the database system is starting up",
	"the database system is shutting down",
	"driver: bad connection",
}
