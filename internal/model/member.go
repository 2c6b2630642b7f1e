package model

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	usernamePattern      = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	emailPattern         = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	discriminatorPattern = regexp.MustCompile(`^[0-9]{4}$`)
)

const (
	// DiscriminatorSpace is the number of distinct discriminators per username.
	DiscriminatorSpace = 10000
)

// Member is a registered identity. (Username, Discriminator) is unique.
type Member struct {
	Base
	Username       string `gorm:"not null;type:varchar(30);uniqueIndex:idx_member_handle" json:"username"`
	Discriminator  string `gorm:"not null;type:char(4);uniqueIndex:idx_member_handle" json:"discriminator"`
	Email          string `gorm:"not null;type:varchar(255);uniqueIndex" json:"email"`
	PasswordHash   string `gorm:"not null;type:varchar(255)" json:"-"`
	ProfilePicture string `gorm:"type:varchar(512)" json:"profile_picture,omitempty"`
}

func (Member) TableName() string {
	return "members"
}

// FormatDiscriminator renders n as the zero-padded 4-digit discriminator.
func FormatDiscriminator(n int) string {
	return fmt.Sprintf("%04d", n)
}

// NewMember validates the identity fields. passwordHash must already be
// produced by HashPassword.
func NewMember(username, email, passwordHash, discriminator string) (*Member, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if !discriminatorPattern.MatchString(discriminator) {
		return nil, Invalid("discriminator must be four digits")
	}
	if passwordHash == "" {
		return nil, Invalid("password hash is required")
	}
	return &Member{
		Base:          newBase(),
		Username:      username,
		Discriminator: discriminator,
		Email:         email,
		PasswordHash:  passwordHash,
	}, nil
}

func ValidateUsername(username string) error {
	if err := checkRequired("username", username, 3, 30); err != nil {
		return err
	}
	if !usernamePattern.MatchString(username) {
		return Invalid("username may only contain letters, digits and underscores")
	}
	return nil
}

func ValidateEmail(email string) error {
	if err := checkRequired("email", email, 3, 255); err != nil {
		return err
	}
	if !emailPattern.MatchString(email) {
		return Invalid("email is not a valid address")
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HashPassword validates a raw password and returns its bcrypt hash.
func HashPassword(password string) (string, error) {
	if err := checkLength("password", password, 6, 100); err != nil {
		return "", err
	}
	// bcrypt only looks at the first 72 bytes and rejects anything longer.
	if len(password) > 72 {
		return "", Invalid("password must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword reports whether password matches the stored hash.
func (m *Member) ComparePassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(m.PasswordHash), []byte(password))
	return err == nil
}

// Handle is the public "username#0000" form.
func (m *Member) Handle() string {
	return m.Username + "#" + m.Discriminator
}

func (m *Member) ChangeUsername(username, discriminator string) error {
	if err := ValidateUsername(username); err != nil {
		return err
	}
	if !discriminatorPattern.MatchString(discriminator) {
		return Invalid("discriminator must be four digits")
	}
	m.Username = username
	m.Discriminator = discriminator
	return nil
}

func (m *Member) ChangeProfilePicture(ref string) error {
	if err := ValidateImageURL(ref); err != nil {
		return err
	}
	m.ProfilePicture = ref
	return nil
}
