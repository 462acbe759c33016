package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LoggingTransport wraps an http.RoundTripper and dumps every request and
// JSON response to a log file. Useful when debugging the server contract.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	mu        sync.Mutex
	writer    *bufio.Writer
}

var (
	openTransportsMu sync.Mutex
	openTransports   []*LoggingTransport
)

// NewLoggingTransport creates a LoggingTransport appending to logFilePath.
// The transport is registered so CloseAllLoggingTransports can flush it on
// exit.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", logFilePath, err)
	}

	if transport == nil {
		transport = http.DefaultTransport
	}

	t := &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}

	openTransportsMu.Lock()
	openTransports = append(openTransports, t)
	openTransportsMu.Unlock()

	return t, nil
}

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	startTime := time.Now()

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		log.WithError(err).Error("Failed to dump API request for logging")
	} else {
		t.writeLog(fmt.Sprintf("--- Request (%s) ---\n%s\n", startTime.Format(time.RFC3339), string(reqDump)))
	}

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(startTime)

	if err != nil {
		t.writeLog(fmt.Sprintf("--- Response Error (Duration: %v) ---\n%s\n", duration, err.Error()))
		t.writer.Flush()
		return resp, err
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			log.WithError(readErr).Error("Failed to read response body for logging")
			t.writeLog(fmt.Sprintf("--- Response (Duration: %v) ---\nStatus: %s\n(body read failed)\n", duration, resp.Status))
		} else {
			// Restore the body so the caller can read it.
			resp.Body.Close()
			resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			t.writeLog(fmt.Sprintf("--- Response (Duration: %v) ---\nStatus: %s\n%s\n", duration, resp.Status, string(bodyBytes)))
		}
	} else {
		t.writeLog(fmt.Sprintf("--- Response (Duration: %v, Type: %s) ---\nStatus: %s\n(body not logged)\n", duration, contentType, resp.Status))
	}

	t.writer.Flush()
	return resp, nil
}

func (t *LoggingTransport) writeLog(logString string) {
	if _, err := t.writer.WriteString(logString + "\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\n", err)
	}
}

// Close flushes and closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}

// CloseAllLoggingTransports closes every transport opened through
// NewLoggingTransport. Called once from main on exit.
func CloseAllLoggingTransports() {
	openTransportsMu.Lock()
	transports := openTransports
	openTransports = nil
	openTransportsMu.Unlock()

	for _, t := range transports {
		if err := t.Close(); err != nil {
			log.WithError(err).Error("Error closing API log file")
		}
	}
}
