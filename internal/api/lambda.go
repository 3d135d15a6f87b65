package api

import (
	"context"
	"encoding/base64"
	"strings"

	"nobat/internal/metrics"

	"github.com/aws/aws-lambda-go/events"
)

// HandleFunctionURL serves the webhook behind a Lambda function URL.
func (s *HTTPServer) HandleFunctionURL(ctx context.Context, req events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cannot decode base64 body")
			decoded = nil
		}
		body = decoded
	}
	if int64(len(body)) > s.cfg.HTTP.MaxBodyBytes {
		s.logger.Warn().Int("bytes", len(body)).Msg("webhook body rejected")
		body = nil
	}

	status, text := s.Process(ctx, req.RequestContext.HTTP.Method, header(req.Headers, SecretHeader), body)
	metrics.IncHTTP(s.cfg.HTTP.Path, status)

	return events.LambdaFunctionURLResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       text,
	}, nil
}

// header looks name up case-insensitively; function URLs deliver lower-case keys.
func header(headers map[string]string, name string) string {
	if v, ok := headers[strings.ToLower(name)]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
