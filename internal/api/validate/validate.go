package validate

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
)

var emailRx = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// userIDRx accepts auth-provider UIDs: letters, digits, underscore and hyphen, 1-128 chars.
var userIDRx = regexp.MustCompile(`^[A-Za-z0-9_\-]{1,128}$`)

func NonEmpty(field, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", field)
	}
	return nil
}

func MaxLen(field string, v string, limit int) error {
	if len(v) > limit {
		return fmt.Errorf("%s exceeds %d characters", field, limit)
	}
	return nil
}

func UserID(v string) error {
	if v == "" {
		return fmt.Errorf("userId is required")
	}
	if !userIDRx.MatchString(v) {
		return fmt.Errorf("userId must match %s", userIDRx.String())
	}
	return nil
}

func TaskID(v string) error {
	if err := NonEmpty("taskId", v); err != nil {
		return err
	}
	return MaxLen("taskId", v, 256)
}

func Email(v string) error {
	if v == "" {
		return fmt.Errorf("email is required")
	}
	if len(v) > 320 || !emailRx.MatchString(v) {
		return fmt.Errorf("invalid email")
	}
	return nil
}

// PositiveInt parses a query parameter. An empty value yields def.
func PositiveInt(field, raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s parameter, must be a positive number", field)
	}
	return n, nil
}

// -------- Request specific helpers ----------

// CreateUser validates a profile. Email and photoURL are optional.
func CreateUser(userID, displayName, email, photoURL string) error {
	if err := UserID(userID); err != nil {
		return err
	}
	if err := NonEmpty("displayName", displayName); err != nil {
		return err
	}
	if err := MaxLen("displayName", displayName, 100); err != nil {
		return err
	}
	if email != "" {
		if err := Email(email); err != nil {
			return err
		}
	}
	if photoURL != "" {
		u, err := url.Parse(photoURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("photoURL must be an absolute http(s) URL")
		}
	}
	return nil
}
