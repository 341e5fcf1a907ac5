//go:build lambda

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"cscplan/internal/logging"
	"cscplan/internal/settings"
)

var jsonHeader = map[string]string{
	"Content-Type": "application/json",
}

func newHandler(s *solver) func(context.Context, events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	return func(ctx context.Context, event events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
		body := event.Body
		if event.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(body)
			if err != nil {
				return errResp(400, "invalid base64 body")
			}
			body = string(decoded)
		}

		req, err := parseRequest([]byte(body))
		if err != nil {
			return errResp(statusOf(err), err.Error())
		}
		resp, err := s.solve(ctx, req)
		if err != nil {
			s.logger.Warn("solve failed", zap.String("mode", req.Mode), zap.Error(err))
			return errResp(statusOf(err), err.Error())
		}
		respJSON, err := json.Marshal(resp)
		if err != nil {
			return errResp(500, err.Error())
		}
		return events.LambdaFunctionURLResponse{StatusCode: 200, Headers: jsonHeader, Body: string(respJSON)}, nil
	}
}

func errResp(code int, msg string) (events.LambdaFunctionURLResponse, error) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return events.LambdaFunctionURLResponse{StatusCode: code, Headers: jsonHeader, Body: string(body)}, nil
}

func main() {
	env, err := settings.Load()
	if err != nil {
		panic(err)
	}
	logger, err := logging.NewJSON(env.LogLevel, os.Stderr)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	lambda.Start(newHandler(&solver{logger: logger, workers: env.Workers}))
}
