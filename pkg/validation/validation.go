package validation

import (
	"encoding/base64"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/vinodismyname/mcpconc/pkg/pagination"
)

var (
	v     *validator.Validate
	vOnce sync.Once

	a1Re      = regexp.MustCompile(`^[A-Za-z]+[0-9]+$`)
	nameRe    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_\. ]{0,63}$`)
	profileRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_\-]{0,63}$`)
	indexRe   = regexp.MustCompile(`(?i)^(CR[0-9]{0,3}|HHI|MOCDI|HI)$`)
)

// DatasetExtensions lists the input file extensions accepted by the reader.
var DatasetExtensions = []string{".csv", ".txt", ".xlsx", ".xlsm"}

// Validator returns a singleton validator with custom rules registered.
func Validator() *validator.Validate {
	vOnce.Do(func() {
		v = validator.New()
		// Report fields by their wire names (json, then yaml)
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, key := range []string{"json", "yaml"} {
				name, _, _ := strings.Cut(f.Tag.Get(key), ",")
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
		// Input file must be a supported table format
		_ = v.RegisterValidation("dataset_ext", func(fl validator.FieldLevel) bool {
			s := strings.ToLower(strings.TrimSpace(fl.Field().String()))
			if s == "" {
				return false
			}
			for _, ext := range DatasetExtensions {
				if strings.HasSuffix(s, ext) {
					return true
				}
			}
			return false
		})
		// A1-style range or a plausible defined name (xlsx inputs only)
		_ = v.RegisterValidation("a1orname", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return false
			}
			if strings.Contains(s, ":") {
				parts := strings.Split(s, ":")
				if len(parts) != 2 {
					return false
				}
				return a1Re.MatchString(parts[0]) && a1Re.MatchString(parts[1])
			}
			return nameRe.MatchString(s)
		})
		_ = v.RegisterValidation("share_scale", func(fl validator.FieldLevel) bool {
			switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
			case "", "auto", "percentage", "percent", "pct", "fraction", "ratio":
				return true
			}
			return false
		})
		_ = v.RegisterValidation("profile", func(fl validator.FieldLevel) bool {
			return profileRe.MatchString(strings.TrimSpace(fl.Field().String()))
		})
		_ = v.RegisterValidation("index_name", func(fl validator.FieldLevel) bool {
			return indexRe.MatchString(strings.TrimSpace(fl.Field().String()))
		})
		// Cursor must be decodable via pagination.DecodeCursor
		_ = v.RegisterValidation("cursor", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true // use omitempty with this tag
			}
			if _, err := base64.RawURLEncoding.DecodeString(s); err != nil {
				return false
			}
			_, err := pagination.DecodeCursor(s)
			return err == nil
		})
	})
	return v
}

// ValidateStruct validates a struct and returns a user-friendly error string
// suitable for MCP tool errors. Returns empty string when valid.
func ValidateStruct(s any) string {
	err := Validator().Struct(s)
	if err == nil {
		return ""
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok || len(ve) == 0 {
		return "VALIDATION: invalid inputs"
	}
	fe := ve[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("VALIDATION: %s is required", field)
	case "required_without", "required_without_all":
		return fmt.Sprintf("VALIDATION: %s is required (or supply %s)", field, strings.ToLower(strings.ReplaceAll(fe.Param(), " ", " or ")))
	case "dataset_ext":
		return "VALIDATION: path must be a table file (.csv, .txt, .xlsx, .xlsm)"
	case "a1orname":
		return "VALIDATION: invalid range; use A1:C50 or a defined name"
	case "share_scale", "oneof":
		if field == "scale" {
			return "VALIDATION: scale must be auto, percentage or fraction"
		}
		return fmt.Sprintf("VALIDATION: %s must be one of %s", field, fe.Param())
	case "profile":
		return "VALIDATION: profile must be a name such as antitrust or media"
	case "index_name":
		return "VALIDATION: index must be CR, CR<n>, HHI, MOCDI or HI"
	case "cursor":
		return "CURSOR_INVALID: failed to decode cursor; restart pagination without a cursor"
	case "min", "max", "gte", "lte", "gt", "lt":
		return fmt.Sprintf("VALIDATION: %s must satisfy %s=%s", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("VALIDATION: invalid %s", field)
}
