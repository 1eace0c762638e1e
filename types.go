package sigv4gate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// PrincipalType identifies what kind of caller a Principal describes.
type PrincipalType string

const (
	PrincipalUser        PrincipalType = "user"
	PrincipalAssumedRole PrincipalType = "assumed_role"
	PrincipalService     PrincipalType = "service"
)

func (t PrincipalType) IsValid() bool {
	switch t {
	case PrincipalUser, PrincipalAssumedRole, PrincipalService:
		return true
	default:
		return false
	}
}

func ParsePrincipalType(s string) (PrincipalType, error) {
	pt := PrincipalType(s)
	if !pt.IsValid() {
		return "", fmt.Errorf("invalid principal type: %s (valid types: user, assumed_role, service): %w", s, ErrInvalidInput)
	}
	return pt, nil
}

const DefaultPartition = "aws"

// Principal is the authenticated identity of a caller.
// It is a value type and is never mutated once attached to a request.
type Principal struct {
	Type      PrincipalType `json:"type"`
	Partition string        `json:"partition,omitempty"`
	AccountID string        `json:"account_id,omitempty"`
	Path      string        `json:"path,omitempty"`
	Name      string        `json:"name"`
	Namespace string        `json:"namespace,omitempty"`
	AccessKey string        `json:"access_key,omitempty"`
}

// UserPrincipal returns an IAM user principal. An empty path means "/".
func UserPrincipal(accountID, path, name string) (Principal, error) {
	if name == "" {
		return Principal{}, fmt.Errorf("user principal: name cannot be empty: %w", ErrInvalidInput)
	}
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") || !strings.HasSuffix(path, "/") {
		return Principal{}, fmt.Errorf("user principal: path must start and end with '/': %w", ErrInvalidInput)
	}
	return Principal{
		Type:      PrincipalUser,
		Partition: DefaultPartition,
		AccountID: accountID,
		Path:      path,
		Name:      name,
	}, nil
}

// ServicePrincipal returns a principal for a service, e.g. ("hello", "local").
func ServicePrincipal(name, namespace string) (Principal, error) {
	if name == "" || namespace == "" {
		return Principal{}, fmt.Errorf("service principal: name and namespace are required: %w", ErrInvalidInput)
	}
	return Principal{
		Type:      PrincipalService,
		Partition: DefaultPartition,
		Name:      name,
		Namespace: namespace,
	}, nil
}

// IsZero reports whether p is the zero Principal.
func (p Principal) IsZero() bool {
	return p == Principal{}
}

// ARN returns the Amazon Resource Name of the principal.
// Service principals have no ARN and return an empty string.
func (p Principal) ARN() string {
	partition := p.Partition
	if partition == "" {
		partition = DefaultPartition
	}

	switch p.Type {
	case PrincipalUser:
		path := p.Path
		if path == "" {
			path = "/"
		}
		return fmt.Sprintf("arn:%s:iam::%s:user%s%s", partition, p.AccountID, path, p.Name)
	case PrincipalAssumedRole:
		return fmt.Sprintf("arn:%s:sts::%s:assumed-role/%s", partition, p.AccountID, p.Name)
	default:
		return ""
	}
}

func (p Principal) String() string {
	if p.Type == PrincipalService {
		return p.Name + "." + p.Namespace
	}
	return p.ARN()
}

// SigningKeyKind selects which stage of the SigV4 key derivation chain a
// KeyLookup returns. Stages after the returned one are derived per request.
type SigningKeyKind string

const (
	KSecret  SigningKeyKind = "secret"
	KDate    SigningKeyKind = "date"
	KRegion  SigningKeyKind = "region"
	KService SigningKeyKind = "service"
	KSigning SigningKeyKind = "signing"
)

func (k SigningKeyKind) IsValid() bool {
	switch k {
	case KSecret, KDate, KRegion, KService, KSigning:
		return true
	default:
		return false
	}
}

// ParseSigningKeyKind parses s, treating the empty string as KSigning.
func ParseSigningKeyKind(s string) (SigningKeyKind, error) {
	if s == "" {
		return KSigning, nil
	}
	kind := SigningKeyKind(strings.ToLower(s))
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid signing key kind: %s (valid kinds: secret, date, region, service, signing): %w", s, ErrInvalidInput)
	}
	return kind, nil
}

const (
	DefaultAllowedClockSkew       = 5 * time.Minute
	DefaultMaxBodySize      int64 = 10 << 20

	// NoBodyLimit disables the body cap.
	NoBodyLimit int64 = -1
)

// AuthConfig is the interceptor configuration. It is read-only once an
// interceptor has been built from it.
type AuthConfig struct {
	Region           string         `mapstructure:"region" validate:"required"`
	Service          string         `mapstructure:"service" validate:"required"`
	SigningKeyKind   SigningKeyKind `mapstructure:"signing_key_kind" validate:"omitempty,oneof=secret date region service signing"`
	AllowedClockSkew time.Duration  `mapstructure:"allowed_clock_skew" validate:"min=0"`
	// MaxBodySize caps the buffered request body in bytes. 0 means
	// DefaultMaxBodySize, NoBodyLimit means no cap.
	MaxBodySize int64 `mapstructure:"max_body_size" validate:"min=-1"`
}

// NewAuthConfig returns a config for region and service with every other
// field at its default.
func NewAuthConfig(region, service string) AuthConfig {
	return AuthConfig{
		Region:           region,
		Service:          service,
		SigningKeyKind:   KSigning,
		AllowedClockSkew: DefaultAllowedClockSkew,
		MaxBodySize:      DefaultMaxBodySize,
	}
}

// WithDefaults replaces zero values with their defaults.
func (c AuthConfig) WithDefaults() AuthConfig {
	if c.SigningKeyKind == "" {
		c.SigningKeyKind = KSigning
	}
	if c.AllowedClockSkew == 0 {
		c.AllowedClockSkew = DefaultAllowedClockSkew
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}
	return c
}

func (c AuthConfig) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("validate auth config: region cannot be empty: %w", ErrInvalidInput)
	}
	if c.Service == "" {
		return fmt.Errorf("validate auth config: service cannot be empty: %w", ErrInvalidInput)
	}
	if c.SigningKeyKind != "" && !c.SigningKeyKind.IsValid() {
		return fmt.Errorf("validate auth config: invalid signing key kind %q: %w", c.SigningKeyKind, ErrInvalidInput)
	}
	if c.AllowedClockSkew < 0 || c.MaxBodySize < NoBodyLimit {
		return fmt.Errorf("validate auth config: negative limits: %w", ErrInvalidInput)
	}
	return nil
}

// Tables holds configurable table names for key storage.
// This allows multi-tenant deployments to use different table names.
type Tables struct {
	Keys string `mapstructure:"keys"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set and valid.
func (t Tables) Validate() error {
	if t.Keys == "" {
		return errors.New("validate tables: keys table name cannot be empty")
	}

	if !IsValidTableName(t.Keys) {
		return fmt.Errorf("validate tables: invalid keys table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", t.Keys)
	}

	return nil
}
