package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonthLabel(t *testing.T) {
	assert.Equal(t, "Janvier 2026", MonthLabel(2026, time.January))
	assert.Equal(t, "Décembre 2026", MonthLabel(2026, time.December))
	assert.Equal(t, "Août 2025", MonthLabel(2025, time.August))
}

func TestFormatFrenchDateTime(t *testing.T) {
	at := time.Date(2026, time.March, 26, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "26 mars 2026", FormatFrenchDate(at, time.UTC))
	assert.Equal(t, "26 mars 2026 à 15h00", FormatFrenchDateTime(at, time.UTC))
	assert.Equal(t, "", FormatFrenchDatePtr(nil, time.UTC))
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"protocol.pdf", "protocol.pdf"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\pi\consent.docx`, "consent.docx"},
		{"  ", ""},
		{"..", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeFilename(tc.in), tc.in)
	}
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("pi@univ.example.org"))
	assert.False(t, ValidateEmail("not-an-email"))
}
