package util

import (
	"context"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.uber.org/zap"
)

// ServiceName identifies this process in logs and traces.
const ServiceName = "storefront"

// ServiceVersion is stamped at build time with
// -ldflags "-X storefront/internal/util.ServiceVersion=<tag>".
var ServiceVersion = "dev"

// identityFields are attached to every log entry so log lines can be
// joined with the spans exported under serviceResource.
func identityFields(env string) []zap.Field {
	return []zap.Field{
		zap.String("service", ServiceName),
		zap.String("version", ServiceVersion),
		zap.String("env", env),
	}
}

func serviceResource(env string) (*resource.Resource, error) {
	return resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
			semconv.DeploymentEnvironment(env),
		),
	)
}
