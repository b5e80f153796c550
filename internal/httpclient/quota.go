package httpclient

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	quotaLowMessageConstant         = "platform quota running low"
	quotaObservedMessageConstant    = "platform quota observed"
	quotaRemainingFieldConstant     = "remaining"
	quotaLimitFieldConstant         = "limit"
	quotaPlatformFieldConstant      = "platform"
	defaultLowQuotaAbsoluteConstant = 10
	defaultLowQuotaRatioConstant    = 0.1
)

// QuotaSnapshot captures the quota headers of a single response.
type QuotaSnapshot struct {
	Remaining int
	Limit     int
}

// ReadQuota extracts remaining and limit values when both headers are present.
func ReadQuota(header http.Header) (QuotaSnapshot, bool) {
	remainingValue := strings.TrimSpace(header.Get(rateLimitRemainingHeaderConstant))
	limitValue := strings.TrimSpace(header.Get(rateLimitLimitHeaderConstant))
	if len(remainingValue) == 0 {
		return QuotaSnapshot{}, false
	}

	remaining, remainingError := strconv.Atoi(remainingValue)
	if remainingError != nil {
		return QuotaSnapshot{}, false
	}

	limit := 0
	if len(limitValue) > 0 {
		parsedLimit, limitError := strconv.Atoi(limitValue)
		if limitError == nil {
			limit = parsedLimit
		}
	}

	return QuotaSnapshot{Remaining: remaining, Limit: limit}, true
}

// IsLow reports whether the remaining quota dropped below the absolute floor or
// the configured share of the limit.
func (snapshot QuotaSnapshot) IsLow(absoluteFloor int, ratio float64) bool {
	if snapshot.Remaining < absoluteFloor {
		return true
	}
	if snapshot.Limit > 0 && float64(snapshot.Remaining) < float64(snapshot.Limit)*ratio {
		return true
	}
	return false
}

func (client *Client) observeQuota(header http.Header) {
	snapshot, present := ReadQuota(header)
	if !present {
		return
	}

	fields := []zap.Field{
		zap.String(quotaPlatformFieldConstant, client.options.PlatformName),
		zap.Int(quotaRemainingFieldConstant, snapshot.Remaining),
		zap.Int(quotaLimitFieldConstant, snapshot.Limit),
	}
	if snapshot.IsLow(client.options.LowQuotaAbsolute, client.options.LowQuotaRatio) {
		client.logger.Warn(quotaLowMessageConstant, fields...)
		return
	}
	client.logger.Debug(quotaObservedMessageConstant, fields...)
}
