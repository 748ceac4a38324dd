package ucenter

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/nyaruka/phonenumbers"
)

var (
	usernamePattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{2,31}$`)
	printablePattern  = regexp.MustCompile(`^[\x21-\x7e]+$`)
	creditCodePattern = regexp.MustCompile(`^[0-9A-HJ-NPQRTUWXY]{2}\d{6}[0-9A-HJ-NPQRTUWXY]{10}$`)
	residentIDPattern = regexp.MustCompile(`^\d{17}[\dXx]$`)
)

// fieldRules bundles the rules that depend on configuration.
type fieldRules struct {
	region string
}

func newFieldRules(cfg Config) fieldRules {
	region := strings.ToUpper(strings.TrimSpace(cfg.MobileRegion))
	if region == "" {
		region = "CN"
	}
	return fieldRules{region: region}
}

func (r fieldRules) mobile() validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if !r.isMobile(s) {
			return validation.NewError("validation_is_mobile", "must be a valid mobile number")
		}
		return nil
	})
}

func (r fieldRules) isMobile(s string) bool {
	num, err := phonenumbers.Parse(s, r.region)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}

func passwordRules() []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.RuneLength(6, 16),
		validation.Match(printablePattern).Error("must only contain printable characters without spaces"),
	}
}

func usernameRule() validation.Rule {
	return validation.Match(usernamePattern).
		Error("must start with a letter and contain 3 to 32 letters, digits or underscores")
}

// identityRule returns the syntax rule for the identifier column.
func (r fieldRules) identityRule(t IdentityType) validation.Rule {
	switch t {
	case IdentityMobile:
		return r.mobile()
	case IdentityEmail:
		return is.EmailFormat
	default:
		return usernameRule()
	}
}

// toValidationError turns an ozzo error into the package rejection. The
// first failing field names the message so output stays stable.
func toValidationError(err error) error {
	if err == nil {
		return nil
	}

	if errs, ok := err.(validation.Errors); ok && len(errs) > 0 {
		key := sortedKeys(errs)[0]
		return newValidationError(key + ": " + errs[key].Error()).
			WithMetadata(map[string]any{"fields": errs.Error()})
	}

	if ierr, ok := err.(validation.InternalError); ok {
		return storeFault(ierr.InternalError(), "validation failed")
	}

	return newValidationError(err.Error())
}

func sortedKeys(errs validation.Errors) []string {
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// isResidentID checks an 18 digit resident identity number including its
// ISO 7064 MOD 11-2 check character.
func isResidentID(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !residentIDPattern.MatchString(s) {
		return validation.NewError("validation_is_resident_id", "must be a valid identity number")
	}

	weights := [17]int{7, 9, 10, 5, 8, 4, 2, 1, 6, 3, 7, 9, 10, 5, 8, 4, 2}
	checks := "10X98765432"
	sum := 0
	for i := 0; i < 17; i++ {
		sum += int(s[i]-'0') * weights[i]
	}
	if strings.ToUpper(s[17:]) != string(checks[sum%11]) {
		return validation.NewError("validation_is_resident_id", "must be a valid identity number")
	}
	return nil
}

func isCreditCode(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !creditCodePattern.MatchString(s) {
		return validation.NewError("validation_is_credit_code", "must be a valid unified social credit code")
	}
	return nil
}

func minRunes(n int) validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s != "" && utf8.RuneCountInString(s) < n {
			return validation.NewError("validation_length_too_short", "is too short")
		}
		return nil
	})
}
