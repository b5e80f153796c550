package httpclient

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	rateLimitResetHeaderConstant     = "X-RateLimit-Reset"
	rateLimitRemainingHeaderConstant = "X-RateLimit-Remaining"
	rateLimitLimitHeaderConstant     = "X-RateLimit-Limit"
	retryAfterHeaderConstant         = "Retry-After"
	rateLimitBodyMarkerConstant      = "rate limit"
	exhaustedQuotaValueConstant      = "0"
	resetSafetyMarginConstant        = time.Second
	maximumExponentConstant          = 10
)

// RetryDelay selects how long to wait before retrying a throttled or failed
// request. A reset timestamp wins when the response is rate limited, then a
// Retry-After header, then exponential backoff of 2^attempt seconds plus jitter.
func RetryDelay(statusCode int, header http.Header, attempt int, now time.Time, jitter time.Duration) time.Duration {
	if isRateLimitStatus(statusCode) {
		if resetDelay, resetPresent := delayUntilReset(header, now); resetPresent {
			return resetDelay
		}
	}

	if retryAfterDelay, retryAfterPresent := delayFromRetryAfter(header, now); retryAfterPresent {
		return retryAfterDelay
	}

	return exponentialDelay(attempt) + jitter
}

func isRateLimitStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode == http.StatusForbidden
}

func delayUntilReset(header http.Header, now time.Time) (time.Duration, bool) {
	resetValue := strings.TrimSpace(header.Get(rateLimitResetHeaderConstant))
	if len(resetValue) == 0 {
		return 0, false
	}
	resetEpochSeconds, parseError := strconv.ParseInt(resetValue, 10, 64)
	if parseError != nil || resetEpochSeconds <= 0 {
		return 0, false
	}

	delay := time.Unix(resetEpochSeconds, 0).Sub(now) + resetSafetyMarginConstant
	if delay < resetSafetyMarginConstant {
		delay = resetSafetyMarginConstant
	}
	return delay, true
}

func delayFromRetryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	retryAfterValue := strings.TrimSpace(header.Get(retryAfterHeaderConstant))
	if len(retryAfterValue) == 0 {
		return 0, false
	}

	if deltaSeconds, parseError := strconv.Atoi(retryAfterValue); parseError == nil {
		if deltaSeconds < 0 {
			deltaSeconds = 0
		}
		return time.Duration(deltaSeconds) * time.Second, true
	}

	retryAt, parseError := http.ParseTime(retryAfterValue)
	if parseError != nil {
		return 0, false
	}
	delay := retryAt.Sub(now)
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

func exponentialDelay(attempt int) time.Duration {
	exponent := attempt
	if exponent < 0 {
		exponent = 0
	}
	if exponent > maximumExponentConstant {
		exponent = maximumExponentConstant
	}
	return time.Duration(math.Pow(2, float64(exponent))) * time.Second
}

// isRateLimitedForbidden reports whether a 403 response signals throttling
// rather than a permission problem.
func isRateLimitedForbidden(header http.Header, body []byte) bool {
	if strings.TrimSpace(header.Get(rateLimitRemainingHeaderConstant)) == exhaustedQuotaValueConstant {
		return true
	}
	if len(strings.TrimSpace(header.Get(retryAfterHeaderConstant))) > 0 {
		return true
	}
	return strings.Contains(strings.ToLower(string(body)), rateLimitBodyMarkerConstant)
}

func shouldRetryStatus(statusCode int, header http.Header, body []byte) bool {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode == http.StatusForbidden:
		return isRateLimitedForbidden(header, body)
	case statusCode >= http.StatusInternalServerError:
		return true
	default:
		return false
	}
}
