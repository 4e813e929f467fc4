package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deepshark/deepshark-backend/internal/catalog"
	"github.com/deepshark/deepshark-backend/internal/fal"
	"github.com/deepshark/deepshark-backend/internal/middleware"
	"github.com/deepshark/deepshark-backend/internal/service"
)

// targetURLHeader names the outbound provider endpoint for pass-through
// requests.
const targetURLHeader = "X-Fal-Target-Url"

// maxProxyBodySize bounds the request body read for pricing.
const maxProxyBodySize = 4 << 20

// Proxy forwards a request to the generation provider with the platform
// credential injected, debiting credits up front and refunding them if the
// upstream call fails. Successful calls are logged as processing jobs carrying
// the provider request id.
func Proxy(invocationService *service.InvocationService, falClient *fal.Client, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := middleware.AccountID(r.Context())
		if !ok {
			writeErrorResponse(w, http.StatusUnauthorized, "Unauthorized", nil)
			return
		}

		target := r.Header.Get(targetURLHeader)
		if target == "" {
			writeErrorResponse(w, http.StatusBadRequest, "Missing "+targetURLHeader+" header", nil)
			return
		}
		if !falClient.AllowedTarget(target) {
			logger.Warn("Proxy target rejected",
				zap.String("target_url", target),
				zap.String("account_id", accountID.String()),
			)
			writeErrorResponse(w, http.StatusBadRequest, "Target URL not allowed", nil)
			return
		}
		targetURL, err := url.Parse(target)
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Invalid target URL", err)
			return
		}

		// The body is needed twice: once for pricing, once for forwarding.
		body, err := io.ReadAll(io.LimitReader(r.Body, maxProxyBodySize))
		if err != nil {
			writeErrorResponse(w, http.StatusBadRequest, "Failed to read request body", err)
			return
		}
		r.Body.Close()

		var input catalog.Input
		if len(body) > 0 {
			// Non-JSON bodies price as an empty input.
			_ = json.Unmarshal(body, &input)
		}

		charge, err := invocationService.ReserveProxyCharge(r.Context(), accountID, target, input)
		if err != nil {
			writeServiceError(w, err, "Failed to reserve charge")
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))

		proxy := &httputil.ReverseProxy{
			Director: func(req *http.Request) {
				req.URL = targetURL
				req.Host = targetURL.Host
				req.Header.Set("Authorization", falClient.AuthHeader())
				req.Header.Del(targetURLHeader)
				req.Header.Del("Cookie")
			},
			ModifyResponse: func(resp *http.Response) error {
				if resp.StatusCode >= 200 && resp.StatusCode < 300 {
					recordProxyOutcome(invocationService, charge, resp, logger)
					return nil
				}

				logger.Warn("Proxy upstream failed, refunding charge",
					zap.String("account_id", accountID.String()),
					zap.String("target_url", target),
					zap.Int("upstream_status", resp.StatusCode),
					zap.Int("cost", charge.Cost),
				)
				refundInBackground(invocationService, charge, resp.StatusCode)
				return nil
			},
			ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
				logger.Error("Proxy transport failed, refunding charge",
					zap.String("account_id", accountID.String()),
					zap.String("target_url", target),
					zap.Error(err),
				)
				refundInBackground(invocationService, charge, http.StatusBadGateway)
				writeErrorResponse(w, http.StatusBadGateway, "Upstream request failed", err)
			},
		}

		proxy.ServeHTTP(w, r)
	}
}

// maxSniffSize bounds the response bodies we are willing to buffer when
// looking for a request id. Queue submission acks are well under this.
const maxSniffSize = 64 << 10

// recordProxyOutcome extracts the provider request id from a successful
// response and logs the invocation as a processing job.
func recordProxyOutcome(invocationService *service.InvocationService, charge *service.ProxyCharge, resp *http.Response, logger *zap.Logger) {
	requestID := sniffRequestID(resp, logger)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		invocationService.LogProxyJob(ctx, charge, requestID)
	}()
}

// sniffRequestID reads the provider request id from the response header,
// falling back to decoding small JSON bodies (queue submissions carry the id
// in the body only). Anything large, streaming, or of unknown length passes
// through to the client without being buffered.
func sniffRequestID(resp *http.Response, logger *zap.Logger) string {
	if id := resp.Header.Get("X-Fal-Request-Id"); id != "" {
		return id
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return ""
	}
	if resp.ContentLength < 0 || resp.ContentLength > maxSniffSize {
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSniffSize))
	if err != nil {
		logger.Warn("Failed to read proxied response body", zap.Error(err))
		resp.Body.Close()
		resp.Body = io.NopCloser(bytes.NewReader(body))
		resp.ContentLength = int64(len(body))
		return ""
	}
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))

	var parsed struct {
		RequestID string `json:"request_id"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		return parsed.RequestID
	}
	return ""
}

// refundInBackground re-credits the charge without blocking the response.
// The request context is already tied to the client connection, so the
// refund runs on its own deadline.
func refundInBackground(invocationService *service.InvocationService, charge *service.ProxyCharge, upstreamStatus int) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		invocationService.RefundProxyCharge(ctx, charge, upstreamStatus)
	}()
}
