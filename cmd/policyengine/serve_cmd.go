package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/meshward/policyguard/pkg/config"
	"github.com/meshward/policyguard/pkg/identity"
	"github.com/meshward/policyguard/pkg/observability"
	"github.com/meshward/policyguard/pkg/pdp"
	"github.com/meshward/policyguard/pkg/valuepath"
)

// runServeCmd implements `policyengine serve`: load a policy set and run
// an HTTP server exposing POST /evaluate, every request wrapped in an
// observability span.
func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var policyPath string
	cmd.StringVar(&policyPath, "policy", "", "Path to a policy YAML document (REQUIRED)")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if policyPath == "" {
		fmt.Fprintln(stderr, "Error: --policy is required")
		return 2
	}

	cfg := config.Load()
	logger := slog.Default()

	point, err := loadNativePDP(policyPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx := context.Background()
	provider, err := observability.New(ctx, &observability.Config{
		ServiceName: "policyengine",
		Environment: cfg.LogLevel,
		SampleRate:  cfg.TracingSample,
		Enabled:     cfg.TracingEnabled,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: init tracing: %v\n", err)
		return 2
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	tm, err := defaultTokenManager()
	if err != nil {
		fmt.Fprintf(stderr, "Error: init token manager: %v\n", err)
		return 2
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/evaluate", evaluateHandler(point, tm, provider))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		fmt.Fprintf(stdout, "policyengine listening on :%s\n", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return 0
}

func defaultTokenManager() (*identity.TokenManager, error) {
	ks, err := identity.NewInMemoryKeySet()
	if err != nil {
		return nil, err
	}
	return identity.NewTokenManager(ks), nil
}

func evaluateHandler(point pdp.PolicyDecisionPoint, tm *identity.TokenManager, provider *observability.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		req := &pdp.DecisionRequest{}
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			writeProblemDetail(w, http.StatusBadRequest, "malformed request body")
			return
		}

		// A bearer token, when present, is authoritative over identity and
		// tenant: it overrides whatever the request body's context claims.
		if token := bearerToken(r); token != "" {
			claims, err := tm.ParseToken(token)
			if err != nil {
				writeProblemDetail(w, http.StatusUnauthorized, "invalid bearer token")
				return
			}
			if req.Context == nil {
				req.Context = &valuepath.EvaluationContext{}
			}
			req.Context.Identity = claims.ToIdentity()
			req.Context.Tenant = claims.ToTenant()
			if role, ok := claims.ToRole(); ok {
				req.Context.Role = &role
			}
		}

		if req.Context == nil {
			writeProblemDetail(w, http.StatusBadRequest, "missing evaluation context")
			return
		}
		if req.RequestID == "" {
			req.RequestID = uuid.NewString()
		}
		req.Timestamp = time.Now().UTC()

		ctx := r.Context()
		var resp *pdp.DecisionResponse
		traceErr := provider.TraceEvaluation(ctx, req.Context.Tenant.TenantID, func(spanCtx context.Context) error {
			var evalErr error
			resp, evalErr = point.Evaluate(spanCtx, req)
			return evalErr
		})

		w.Header().Set("Content-Type", "application/json")
		if resp == nil {
			writeProblemDetail(w, http.StatusInternalServerError, fmt.Sprintf("evaluation failed: %v", traceErr))
			return
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func writeProblemDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"detail": detail,
	})
}
