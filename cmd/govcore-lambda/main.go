// Command govcore-lambda is an alternate serverless entry point for the
// same demo HTTP shim as cmd/govcore-demo, running the turn pipeline
// behind API Gateway HTTP API + Lambda. Translates the API Gateway v2
// event to an http.Request by hand rather than through a proxy adapter
// package, since this module does not carry one.
package main

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"groundedmemory/infrastructure/config"
	"groundedmemory/infrastructure/di"
	"groundedmemory/interfaces/http/rest"
)

var (
	handler       http.Handler
	container     *di.Container
	coldStart     = true
	coldStartTime time.Time
)

func init() {
	coldStartTime = time.Now()
	log.Println("govcore-lambda: cold start initiated")

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("govcore-lambda: load config: %v", err)
	}

	container, err = di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("govcore-lambda: initialize container: %v", err)
	}

	router := rest.NewRouter(container.Orchestrator, container.LedgerService, container.Logger, cfg.EnableCORS)
	handler = router.Setup()

	log.Printf("govcore-lambda: cold start completed in %v", time.Since(coldStartTime))
}

// Handle translates an API Gateway v2 HTTP event into an http.Request,
// runs it through the chi router, and translates the recorded response
// back into an API Gateway v2 response.
func Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	path := req.RawPath
	if req.RawQueryString != "" {
		path += "?" + req.RawQueryString
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.RequestContext.HTTP.Method, path, bytes.NewBufferString(req.Body))
	if err != nil {
		return events.APIGatewayV2HTTPResponse{StatusCode: http.StatusInternalServerError}, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.RequestContext.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestContext.RequestID)
	}

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httpReq)
	result := recorder.Result()
	defer result.Body.Close()

	respHeaders := make(map[string]string, len(result.Header))
	for k := range result.Header {
		respHeaders[k] = result.Header.Get(k)
	}
	if coldStart {
		respHeaders["X-Cold-Start"] = "true"
		coldStart = false
	} else {
		respHeaders["X-Cold-Start"] = "false"
	}

	var bodyBuf bytes.Buffer
	bodyBuf.ReadFrom(result.Body)

	if container != nil && container.Logger != nil {
		container.Logger.Info("govcore-lambda response",
			zap.String("method", req.RequestContext.HTTP.Method),
			zap.String("path", req.RequestContext.HTTP.Path),
			zap.String("request_id", req.RequestContext.RequestID),
			zap.Int("status_code", result.StatusCode),
		)
	}

	return events.APIGatewayV2HTTPResponse{
		StatusCode:      result.StatusCode,
		Headers:         respHeaders,
		Body:            bodyBuf.String(),
		IsBase64Encoded: false,
	}, nil
}

func main() {
	lambda.Start(Handle)
}
