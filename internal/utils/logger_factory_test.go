package utils_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/orgmigrate/internal/utils"
)

const (
	testLogMessageConstant       = "repository created"
	testDebugMessageConstant     = "repository lookup"
	testApplicationFieldKey      = "application"
	testApplicationFieldValue    = "orgmigrate"
	testRepositoryFieldKey       = "repository"
	testRepositoryFieldValue     = "payments-api"
	testUnsupportedValueConstant = "verbose"
)

func TestLoggerFactoryCreateLogger(testInstance *testing.T) {
	testCases := []struct {
		name               string
		requestedLogLevel  utils.LogLevel
		requestedLogFormat utils.LogFormat
		expectStructured   bool
		expectDebugEntry   bool
	}{
		{name: "structured_debug", requestedLogLevel: utils.LogLevelDebug, requestedLogFormat: utils.LogFormatStructured, expectStructured: true, expectDebugEntry: true},
		{name: "structured_info", requestedLogLevel: utils.LogLevelInfo, requestedLogFormat: utils.LogFormatStructured, expectStructured: true},
		{name: "console_info", requestedLogLevel: utils.LogLevelInfo, requestedLogFormat: utils.LogFormatConsole},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			var output bytes.Buffer
			loggerFactory := utils.NewLoggerFactory(
				utils.WithLoggerOutput(&output),
				utils.WithLoggerFields(zap.String(testApplicationFieldKey, testApplicationFieldValue)),
			)

			logger, creationError := loggerFactory.CreateLogger(testCase.requestedLogLevel, testCase.requestedLogFormat)
			require.NoError(testInstance, creationError)

			logger.Debug(testDebugMessageConstant)
			logger.Info(testLogMessageConstant, zap.String(testRepositoryFieldKey, testRepositoryFieldValue))
			require.NoError(testInstance, logger.Sync())

			lines := readLines(testInstance, output.Bytes())
			if testCase.expectDebugEntry {
				require.Len(testInstance, lines, 2)
			} else {
				require.Len(testInstance, lines, 1)
			}

			lastLine := lines[len(lines)-1]
			require.Contains(testInstance, lastLine, testLogMessageConstant)
			require.Contains(testInstance, lastLine, testRepositoryFieldValue)
			require.Contains(testInstance, lastLine, testApplicationFieldValue)

			if !testCase.expectStructured {
				require.False(testInstance, json.Valid([]byte(lastLine)))
				require.Contains(testInstance, lastLine, "INFO")
				return
			}

			var entry map[string]any
			require.NoError(testInstance, json.Unmarshal([]byte(lastLine), &entry))
			require.Equal(testInstance, "info", entry["level"])
			require.Equal(testInstance, testApplicationFieldValue, entry[testApplicationFieldKey])
			require.Equal(testInstance, testRepositoryFieldValue, entry[testRepositoryFieldKey])
			require.NotEmpty(testInstance, entry["caller"])
		})
	}
}

func TestLoggerFactoryRejectsUnsupportedSettings(testInstance *testing.T) {
	loggerFactory := utils.NewLoggerFactory(utils.WithLoggerOutput(&bytes.Buffer{}))

	logger, levelError := loggerFactory.CreateLogger(utils.LogLevel(testUnsupportedValueConstant), utils.LogFormatStructured)
	require.ErrorContains(testInstance, levelError, "unsupported log level: verbose")
	require.Nil(testInstance, logger)

	logger, formatError := loggerFactory.CreateLogger(utils.LogLevelInfo, utils.LogFormat(testUnsupportedValueConstant))
	require.ErrorContains(testInstance, formatError, "unsupported log format: verbose")
	require.Nil(testInstance, logger)
}

func TestNormalizeLoggingSettings(testInstance *testing.T) {
	require.Equal(testInstance, utils.LogLevelWarn, utils.NormalizeLogLevel("  WARN "))
	require.Equal(testInstance, utils.LogFormatConsole, utils.NormalizeLogFormat("Console"))
}

func readLines(testInstance *testing.T, contents []byte) []string {
	testInstance.Helper()
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for scanner.Scan() {
		if line := scanner.Text(); len(line) > 0 {
			lines = append(lines, line)
		}
	}
	require.NoError(testInstance, scanner.Err())
	return lines
}
