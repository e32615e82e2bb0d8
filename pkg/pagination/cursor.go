package pagination

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidCursor marks a token that cannot be decoded.
	ErrInvalidCursor = errors.New("cursor: invalid token")
	// ErrStaleCursor marks a token issued for different options or a different dataset.
	ErrStaleCursor = errors.New("cursor: stale for current request")
)

// Unit represents the counting unit used by cursors.
type Unit string

const (
	UnitGroups Unit = "groups"
	UnitRows   Unit = "rows"
)

// Cursor is the canonical, opaque pagination token (pre-encoding) with short field names to
// minimize payload size. It is serialized to minified JSON and encoded with URL-safe base64.
//
// Fields:
//   - v:   version of the cursor schema
//   - did: dataset ID
//   - p:   source path, so a cursor can reopen an evicted dataset
//   - u:   unit: "groups" or "rows"
//   - off: offset in unit from the start of the results
//   - ps:  page size in the chosen unit
//   - iat: issued-at timestamp (unix seconds)
//   - oh:  hash of the analysis options the first page was computed with
type Cursor struct {
	V   int    `json:"v"`
	Did string `json:"did"`
	P   string `json:"p,omitempty"`
	U   Unit   `json:"u"`
	Off int    `json:"off"`
	Ps  int    `json:"ps"`
	Iat int64  `json:"iat"`
	Oh  string `json:"oh,omitempty"`
}

// EncodeCursor serializes and encodes the cursor as URL-safe base64 (without padding).
func EncodeCursor(c Cursor) (string, error) {
	if err := validate(&c); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor decodes a URL-safe base64 token and parses the JSON cursor.
func DecodeCursor(token string) (*Cursor, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil, errors.New("cursor: empty token")
	}
	data, err := base64.RawURLEncoding.DecodeString(t)
	if err != nil {
		return nil, fmt.Errorf("cursor: invalid base64: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cursor: invalid json: %w", err)
	}
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// validate performs structural checks and defaulting.
func validate(c *Cursor) error {
	if c.V <= 0 {
		c.V = 1
	}
	if c.Iat == 0 {
		c.Iat = time.Now().Unix()
	}
	if strings.TrimSpace(c.Did) == "" && strings.TrimSpace(c.P) == "" {
		return errors.New("cursor: did (dataset id) or p (path) required")
	}
	switch c.U {
	case UnitGroups, UnitRows:
	default:
		return fmt.Errorf("cursor: invalid unit %q", string(c.U))
	}
	if c.Off < 0 {
		return errors.New("cursor: off must be >= 0")
	}
	if c.Ps <= 0 {
		return errors.New("cursor: ps must be > 0")
	}
	return nil
}

// NextOffset computes the next offset after returning n units.
func NextOffset(curr, n int) int {
	if curr < 0 {
		curr = 0
	}
	if n <= 0 {
		return curr
	}
	return curr + n
}

// HashOptions returns a short stable digest of v's JSON form. A cursor whose
// hash differs from the current request's options is stale.
func HashOptions(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
