package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean name unchanged", "photo.jpg", "photo.jpg"},
		{"forbidden chars replaced", `va<ca>nza:2025|final?.jpg`, "va_ca_nza_2025_final_.jpg"},
		{"path separators replaced", `dir/sub\file.png`, "dir_sub_file.png"},
		{"whitespace collapsed", "  my   holiday \t photo.jpg ", "my holiday photo.jpg"},
		{"quotes and asterisks", `"best"*day*.mp4`, "_best__day_.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFileName(tt.in))
		})
	}
}

// Sanitizing an already-sanitized name must be a no-op, so names can
// safely pass through the sanitizer at multiple layers.
func TestSanitizeFileNameIdempotent(t *testing.T) {
	inputs := []string{
		"photo.jpg",
		`va<ca>nza:2025|final?.jpg`,
		"  spaced   out .png",
		"día de playa.jpg",
	}

	for _, in := range inputs {
		once := SanitizeFileName(in)
		twice := SanitizeFileName(once)
		assert.Equal(t, once, twice, "input %q", in)
	}
}

func TestSanitizeFileNameNormalizesUnicode(t *testing.T) {
	// Decomposed e + combining acute accent becomes the composed form.
	decomposed := "caffè.jpg"
	composed := "caffè.jpg"

	assert.Equal(t, composed, SanitizeFileName(decomposed))
}
