package middleware

import (
	"net/http"
	"strings"

	"github.com/clinic/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClinicContextKey is the key used to store clinic information in gin.Context
const (
	ClinicIDKey     = "clinic_id"
	ClinicCodeKey   = "clinic_code"
	ClinicHeaderKey = "X-Clinic-ID"
)

// ClinicInfo holds the extracted clinic information
type ClinicInfo struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
}

// ClinicExtractor defines the interface for extracting clinic information
type ClinicExtractor interface {
	ExtractClinicID(c *gin.Context) (string, error)
}

// ClinicValidator defines the interface for validating clinic
type ClinicValidator interface {
	ValidateClinic(clinicID string) (*ClinicInfo, error)
}

// ClinicMiddlewareConfig holds configuration for clinic middleware
type ClinicMiddlewareConfig struct {
	// HeaderEnabled enables X-Clinic-ID header extraction
	HeaderEnabled bool
	// JWTEnabled enables JWT claim extraction (requires JWT middleware to run first)
	JWTEnabled bool
	// SubdomainEnabled enables subdomain extraction
	SubdomainEnabled bool
	// BaseDomain is the base domain for subdomain extraction (e.g., "clinichq.com")
	BaseDomain string
	// SkipPaths are paths that don't require clinic context (e.g., health check)
	SkipPaths []string
	// Required determines if clinic context is mandatory
	Required bool
	// Validator is an optional validator to check if clinic exists and is active
	Validator ClinicValidator
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultClinicConfig returns default clinic middleware configuration
func DefaultClinicConfig() ClinicMiddlewareConfig {
	return ClinicMiddlewareConfig{
		HeaderEnabled:    true,
		JWTEnabled:       true,
		SubdomainEnabled: false,
		BaseDomain:       "",
		SkipPaths:        []string{"/health", "/healthz", "/ready", "/metrics", "/api/v1/health"},
		Required:         true,
		Validator:        nil,
		Logger:           nil,
	}
}

// ClinicMiddleware extracts clinic information from the request
// Extraction order: JWT claims > X-Clinic-ID header > subdomain
func ClinicMiddleware() gin.HandlerFunc {
	return ClinicMiddlewareWithConfig(DefaultClinicConfig())
}

// ClinicMiddlewareWithConfig returns clinic middleware with custom configuration
func ClinicMiddlewareWithConfig(cfg ClinicMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check if path should be skipped
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}

		var clinicID string
		var extractionMethod string

		// Priority 1: JWT claims (if JWT middleware has already run)
		if cfg.JWTEnabled {
			if jwtClinicID, exists := c.Get("jwt_clinic_id"); exists {
				if tid, ok := jwtClinicID.(string); ok && tid != "" {
					clinicID = tid
					extractionMethod = "jwt"
				}
			}
		}

		// Priority 2: X-Clinic-ID header
		if clinicID == "" && cfg.HeaderEnabled {
			if headerClinicID := c.GetHeader(ClinicHeaderKey); headerClinicID != "" {
				clinicID = headerClinicID
				extractionMethod = "header"
			}
		}

		// Priority 3: Subdomain extraction
		if clinicID == "" && cfg.SubdomainEnabled && cfg.BaseDomain != "" {
			if subdomainClinicID := extractClinicFromSubdomain(c.Request.Host, cfg.BaseDomain); subdomainClinicID != "" {
				clinicID = subdomainClinicID
				extractionMethod = "subdomain"
			}
		}

		// Validate clinic ID format if present
		if clinicID != "" {
			if err := validateClinicIDFormat(clinicID); err != nil {
				respondUnauthorized(c, "Invalid clinic ID format")
				return
			}
		}

		// Check if clinic is required
		if clinicID == "" && cfg.Required {
			respondUnauthorized(c, "Clinic identification required")
			return
		}

		// Optional: Validate clinic exists and is active
		var clinicInfo *ClinicInfo
		if clinicID != "" && cfg.Validator != nil {
			var err error
			clinicInfo, err = cfg.Validator.ValidateClinic(clinicID)
			if err != nil {
				log := cfg.Logger
				if log == nil {
					log = logger.FromContext(c.Request.Context())
				}
				log.Warn("Clinic validation failed",
					zap.String("clinic_id", clinicID),
					zap.Error(err),
				)
				respondUnauthorized(c, "Invalid or inactive clinic")
				return
			}
		}

		// Set clinic information in context
		if clinicID != "" {
			// Set in gin context for easy access in handlers
			c.Set(ClinicIDKey, clinicID)
			if clinicInfo != nil {
				c.Set(ClinicCodeKey, clinicInfo.Code)
			}

			// Set in request context for service layer access
			ctx := c.Request.Context()
			log := logger.FromContext(ctx)
			ctx, _ = logger.WithClinicID(ctx, log, clinicID)
			c.Request = c.Request.WithContext(ctx)

			// Log extraction method for debugging
			if cfg.Logger != nil {
				cfg.Logger.Debug("Clinic identified",
					zap.String("clinic_id", clinicID),
					zap.String("method", extractionMethod),
				)
			}
		}

		c.Next()
	}
}

// extractClinicFromSubdomain extracts clinic code from subdomain
// e.g., "acme.clinichq.com" with baseDomain "clinichq.com" returns "acme"
func extractClinicFromSubdomain(host, baseDomain string) string {
	// Remove port if present
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	// Check if host ends with base domain
	if !strings.HasSuffix(host, baseDomain) {
		return ""
	}

	// Extract subdomain
	subdomain := strings.TrimSuffix(host, "."+baseDomain)
	if subdomain == host || subdomain == "" || subdomain == "www" {
		return ""
	}

	// Return the first part of subdomain (in case of multi-level subdomains)
	parts := strings.Split(subdomain, ".")
	return parts[0]
}

// validateClinicIDFormat validates that the clinic ID is a valid UUID
func validateClinicIDFormat(clinicID string) error {
	_, err := uuid.Parse(clinicID)
	return err
}

// respondUnauthorized sends an unauthorized response
func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}

// GetClinicID retrieves the clinic ID from gin.Context
func GetClinicID(c *gin.Context) string {
	if clinicID, exists := c.Get(ClinicIDKey); exists {
		if tid, ok := clinicID.(string); ok {
			return tid
		}
	}
	return ""
}

// GetClinicUUID retrieves the clinic ID as UUID from gin.Context
func GetClinicUUID(c *gin.Context) (uuid.UUID, error) {
	clinicID := GetClinicID(c)
	if clinicID == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(clinicID)
}

// GetClinicCode retrieves the clinic code from gin.Context
func GetClinicCode(c *gin.Context) string {
	if clinicCode, exists := c.Get(ClinicCodeKey); exists {
		if code, ok := clinicCode.(string); ok {
			return code
		}
	}
	return ""
}

// MustGetClinicID retrieves the clinic ID from gin.Context or panics if not found
// Use this only in handlers where clinic is guaranteed to exist
func MustGetClinicID(c *gin.Context) string {
	clinicID := GetClinicID(c)
	if clinicID == "" {
		panic("clinic_id not found in context")
	}
	return clinicID
}

// MustGetClinicUUID retrieves the clinic ID as UUID or panics if not found
func MustGetClinicUUID(c *gin.Context) uuid.UUID {
	clinicUUID, err := GetClinicUUID(c)
	if err != nil || clinicUUID == uuid.Nil {
		panic("valid clinic_id not found in context")
	}
	return clinicUUID
}

// OptionalClinicMiddleware creates middleware that doesn't require clinic
func OptionalClinicMiddleware() gin.HandlerFunc {
	cfg := DefaultClinicConfig()
	cfg.Required = false
	return ClinicMiddlewareWithConfig(cfg)
}
