package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// EndpointConfigEnv names the environment variable carrying the endpoint blob.
const EndpointConfigEnv = "CODEGEN_ENDPOINT_CONFIG"

// SchemaVersion is the only blob version accepted.
const SchemaVersion = 2

var ErrVersionMismatch = errors.New("endpoint config version mismatch")

// ApproachFunctions identifies the approach-phase remote functions.
type ApproachFunctions struct {
	Generate string `json:"generate"`
	Iterate  string `json:"iterate"`
}

// CodegenFunctions identifies the code-generation remote functions.
type CodegenFunctions struct {
	Generate   string `json:"generate"`
	Iterate    string `json:"iterate"`
	GetResults string `json:"getResults"`
}

// Endpoints is the resolved remote endpoint map.
type Endpoints struct {
	Endpoint string            `json:"endpoint"`
	Region   string            `json:"region"`
	Approach ApproachFunctions `json:"approach"`
	Codegen  CodegenFunctions  `json:"codegen"`
}

// DefaultEndpoints returns the built-in endpoint map.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Endpoint: "https://lambda.us-east-1.amazonaws.com",
		Region:   "us-east-1",
		Approach: ApproachFunctions{
			Generate: "arn:aws:lambda:us-east-1:123456789012:function:codegen-approach-generate",
			Iterate:  "arn:aws:lambda:us-east-1:123456789012:function:codegen-approach-iterate",
		},
		Codegen: CodegenFunctions{
			Generate:   "arn:aws:lambda:us-east-1:123456789012:function:codegen-generate",
			Iterate:    "arn:aws:lambda:us-east-1:123456789012:function:codegen-iterate",
			GetResults: "arn:aws:lambda:us-east-1:123456789012:function:codegen-get-results",
		},
	}
}

// endpointBlob mirrors the wire shape; nil fields fall back to defaults.
type endpointBlob struct {
	Version    int             `json:"version"`
	Endpoint   *string         `json:"endpoint" validate:"omitempty,url"`
	Region     *string         `json:"region" validate:"omitempty,min=1"`
	LambdaArns *lambdaArnsBlob `json:"lambdaArns"`
}

type lambdaArnsBlob struct {
	Approach *struct {
		Generate *string `json:"generate"`
		Iterate  *string `json:"iterate"`
	} `json:"approach"`
	Codegen *struct {
		Generate   *string `json:"generate"`
		Iterate    *string `json:"iterate"`
		GetResults *string `json:"getResults"`
	} `json:"codegen"`
}

var validate = validator.New()

// ParseEndpoints decodes and validates a schema-v2 blob and merges it onto the defaults.
func ParseEndpoints(raw []byte) (Endpoints, error) {
	var blob endpointBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return Endpoints{}, fmt.Errorf("failed to parse endpoint config: %w", err)
	}

	if blob.Version != SchemaVersion {
		return Endpoints{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, blob.Version, SchemaVersion)
	}

	if err := validate.Struct(blob); err != nil {
		return Endpoints{}, fmt.Errorf("invalid endpoint config: %w", err)
	}

	resolved := DefaultEndpoints()
	override(&resolved.Endpoint, blob.Endpoint)
	override(&resolved.Region, blob.Region)

	if arns := blob.LambdaArns; arns != nil {
		if a := arns.Approach; a != nil {
			override(&resolved.Approach.Generate, a.Generate)
			override(&resolved.Approach.Iterate, a.Iterate)
		}
		if c := arns.Codegen; c != nil {
			override(&resolved.Codegen.Generate, c.Generate)
			override(&resolved.Codegen.Iterate, c.Iterate)
			override(&resolved.Codegen.GetResults, c.GetResults)
		}
	}

	return resolved, nil
}

func override(dst *string, src *string) {
	if src != nil && *src != "" {
		*dst = *src
	}
}

// Resolver resolves the endpoint map at most once. The driver owns it and
// hands the result to every conversation it starts.
type Resolver struct {
	once      sync.Once
	lookup    func(string) (string, bool)
	logger    *zap.Logger
	endpoints Endpoints
}

// NewResolver creates a resolver reading CODEGEN_ENDPOINT_CONFIG from the process environment.
func NewResolver(logger *zap.Logger) *Resolver {
	return NewResolverWithLookup(logger, os.LookupEnv)
}

// NewResolverWithLookup creates a resolver with a custom environment lookup.
func NewResolverWithLookup(logger *zap.Logger, lookup func(string) (string, bool)) *Resolver {
	return &Resolver{
		lookup: lookup,
		logger: logger.Named("config"),
	}
}

// Endpoints returns the resolved map, computing it on first use. It never fails:
// a missing, malformed or mismatched blob yields DefaultEndpoints.
func (r *Resolver) Endpoints() Endpoints {
	r.once.Do(func() {
		r.endpoints = r.resolve()
	})
	return r.endpoints
}

func (r *Resolver) resolve() Endpoints {
	raw, ok := r.lookup(EndpointConfigEnv)
	if !ok || raw == "" {
		r.logger.Debug("endpoint config not set, using defaults")
		return DefaultEndpoints()
	}

	endpoints, err := ParseEndpoints([]byte(raw))
	if err != nil {
		if errors.Is(err, ErrVersionMismatch) {
			r.logger.Error("endpoint config rejected", zap.Error(err))
		} else {
			r.logger.Warn("endpoint config unusable, using defaults", zap.Error(err))
		}
		return DefaultEndpoints()
	}

	r.logger.Info("endpoint config resolved",
		zap.String("endpoint", endpoints.Endpoint),
		zap.String("region", endpoints.Region),
	)
	return endpoints
}
