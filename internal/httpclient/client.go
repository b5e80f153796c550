package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultMaximumAttemptsConstant = 4
	defaultPlatformNameConstant    = "platform"
	maximumJitterConstant          = time.Second
	retryScheduledMessageConstant  = "retrying platform request"
	requestFailedMessageConstant   = "platform request failed"
	methodFieldConstant            = "method"
	urlFieldConstant               = "url"
	statusFieldConstant            = "status"
	attemptFieldConstant           = "attempt"
	waitFieldConstant              = "wait"
	httpProtocolConstant           = "HTTP/1.1"
	responseStatusTemplateConstant = "%d %s"
	decodeResponseTemplateConstant = "decode %s response with status %d: %w"
)

// ClientDependencies provides the collaborators required by Client.
type ClientDependencies struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	Clock      clock.Clock
	Jitter     func() time.Duration
}

// ClientOptions configure retry and quota behaviour.
type ClientOptions struct {
	PlatformName      string
	MaximumAttempts   int
	LowQuotaAbsolute  int
	LowQuotaRatio     float64
	RequestsPerSecond float64
}

// Request describes a single outbound call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response carries the buffered outcome of a call.
type Response struct {
	Method     string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Absent reports whether a read found nothing at the requested location.
func (response Response) Absent() bool {
	return response.Method == http.MethodGet && response.StatusCode == http.StatusNotFound
}

// DecodeJSON unmarshals the response body into target.
func (response Response) DecodeJSON(target any) error {
	if decodeError := json.Unmarshal(response.Body, target); decodeError != nil {
		return fmt.Errorf(decodeResponseTemplateConstant, response.Method, response.StatusCode, decodeError)
	}
	return nil
}

// Client executes platform requests with retries and quota tracking.
type Client struct {
	httpClient *http.Client
	logger     *zap.Logger
	clock      clock.Clock
	jitter     func() time.Duration
	limiter    *rate.Limiter
	options    ClientOptions
}

// NewClient constructs a Client.
func NewClient(dependencies ClientDependencies, options ClientOptions) (*Client, error) {
	if dependencies.HTTPClient == nil {
		return nil, ErrHTTPClientNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clockInstance := dependencies.Clock
	if clockInstance == nil {
		clockInstance = clock.WallClock
	}

	jitter := dependencies.Jitter
	if jitter == nil {
		jitter = randomJitter
	}

	if options.MaximumAttempts <= 0 {
		options.MaximumAttempts = defaultMaximumAttemptsConstant
	}
	if options.LowQuotaAbsolute <= 0 {
		options.LowQuotaAbsolute = defaultLowQuotaAbsoluteConstant
	}
	if options.LowQuotaRatio <= 0 {
		options.LowQuotaRatio = defaultLowQuotaRatioConstant
	}
	if len(strings.TrimSpace(options.PlatformName)) == 0 {
		options.PlatformName = defaultPlatformNameConstant
	}

	var limiter *rate.Limiter
	if options.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(options.RequestsPerSecond), 1)
	}

	return &Client{
		httpClient: dependencies.HTTPClient,
		logger:     logger,
		clock:      clockInstance,
		jitter:     jitter,
		limiter:    limiter,
		options:    options,
	}, nil
}

// Do sends the request. A GET answered with 404 returns an absent Response and
// no error; any other status of 400 or above returns StatusError.
func (client *Client) Do(executionContext context.Context, request Request) (Response, error) {
	response, sendError := client.send(executionContext, request)
	if sendError != nil {
		return Response{}, sendError
	}
	if response.Absent() {
		return response, nil
	}
	if response.StatusCode >= http.StatusBadRequest {
		return Response{}, StatusError{
			Method:     request.Method,
			URL:        request.URL,
			StatusCode: response.StatusCode,
			Body:       string(response.Body),
		}
	}
	return response, nil
}

// RoundTrip applies the retry policy to requests issued by SDK clients.
// Error statuses are returned as responses so the SDK can interpret them.
func (client *Client) RoundTrip(httpRequest *http.Request) (*http.Response, error) {
	var body []byte
	if httpRequest.Body != nil {
		readBody, readError := io.ReadAll(httpRequest.Body)
		httpRequest.Body.Close()
		if readError != nil {
			return nil, readError
		}
		body = readBody
	}

	response, sendError := client.send(httpRequest.Context(), Request{
		Method: httpRequest.Method,
		URL:    httpRequest.URL.String(),
		Header: httpRequest.Header.Clone(),
		Body:   body,
	})
	if sendError != nil {
		return nil, sendError
	}

	return &http.Response{
		Status:        fmt.Sprintf(responseStatusTemplateConstant, response.StatusCode, http.StatusText(response.StatusCode)),
		StatusCode:    response.StatusCode,
		Proto:         httpProtocolConstant,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        response.Header,
		Body:          io.NopCloser(bytes.NewReader(response.Body)),
		ContentLength: int64(len(response.Body)),
		Request:       httpRequest,
	}, nil
}

func (client *Client) send(executionContext context.Context, request Request) (Response, error) {
	if len(strings.TrimSpace(request.URL)) == 0 {
		return Response{}, ErrRequestURLMissing
	}
	method := request.Method
	if len(method) == 0 {
		method = http.MethodGet
	}

	for attempt := 1; ; attempt++ {
		if client.limiter != nil {
			if waitError := client.limiter.Wait(executionContext); waitError != nil {
				return Response{}, waitError
			}
		}

		response, transportError := client.attempt(executionContext, method, request)
		if transportError != nil {
			if executionContext.Err() != nil {
				return Response{}, executionContext.Err()
			}
			if attempt >= client.options.MaximumAttempts {
				client.logger.Warn(requestFailedMessageConstant, zap.String(methodFieldConstant, method), zap.String(urlFieldConstant, request.URL), zap.Error(transportError))
				return Response{}, TransientError{Method: method, URL: request.URL, Attempts: attempt, Cause: transportError}
			}
			if sleepError := client.wait(executionContext, method, request.URL, 0, attempt, RetryDelay(0, nil, attempt, client.clock.Now(), client.jitter())); sleepError != nil {
				return Response{}, sleepError
			}
			continue
		}

		client.observeQuota(response.Header)

		if !shouldRetryStatus(response.StatusCode, response.Header, response.Body) {
			return response, nil
		}
		if attempt >= client.options.MaximumAttempts {
			client.logger.Warn(requestFailedMessageConstant, zap.String(methodFieldConstant, method), zap.String(urlFieldConstant, request.URL), zap.Int(statusFieldConstant, response.StatusCode))
			return Response{}, TransientError{Method: method, URL: request.URL, Attempts: attempt, StatusCode: response.StatusCode}
		}

		delay := RetryDelay(response.StatusCode, response.Header, attempt, client.clock.Now(), client.jitter())
		if sleepError := client.wait(executionContext, method, request.URL, response.StatusCode, attempt, delay); sleepError != nil {
			return Response{}, sleepError
		}
	}
}

func (client *Client) attempt(executionContext context.Context, method string, request Request) (Response, error) {
	var bodyReader io.Reader
	if len(request.Body) > 0 {
		bodyReader = bytes.NewReader(request.Body)
	}

	httpRequest, requestError := http.NewRequestWithContext(executionContext, method, request.URL, bodyReader)
	if requestError != nil {
		return Response{}, requestError
	}
	for headerName, headerValues := range request.Header {
		for _, headerValue := range headerValues {
			httpRequest.Header.Add(headerName, headerValue)
		}
	}

	httpResponse, doError := client.httpClient.Do(httpRequest)
	if doError != nil {
		return Response{}, doError
	}
	defer httpResponse.Body.Close()

	responseBody, readError := io.ReadAll(httpResponse.Body)
	if readError != nil {
		return Response{}, readError
	}

	return Response{
		Method:     method,
		StatusCode: httpResponse.StatusCode,
		Header:     httpResponse.Header,
		Body:       responseBody,
	}, nil
}

func (client *Client) wait(executionContext context.Context, method string, requestURL string, statusCode int, attempt int, delay time.Duration) error {
	client.logger.Info(
		retryScheduledMessageConstant,
		zap.String(quotaPlatformFieldConstant, client.options.PlatformName),
		zap.String(methodFieldConstant, method),
		zap.String(urlFieldConstant, requestURL),
		zap.Int(statusFieldConstant, statusCode),
		zap.Int(attemptFieldConstant, attempt),
		zap.Duration(waitFieldConstant, delay),
	)

	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-client.clock.After(delay):
		return nil
	}
}

func randomJitter() time.Duration {
	return rand.N(maximumJitterConstant)
}
