package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScanner_Scan(t *testing.T) {
	scanner := NewScanner()

	tests := []struct {
		name       string
		content    []byte
		clean      bool
		threatType string
	}{
		{
			name:    "clean text",
			content: []byte("hello"),
			clean:   true,
		},
		{
			name:    "empty payload",
			content: nil,
			clean:   true,
		},
		{
			name:       "eicar signature",
			content:    []byte("prefix " + eicarSignature + " suffix"),
			clean:      false,
			threatType: ThreatTypeMalware,
		},
		{
			name:       "script marker",
			content:    []byte(`<html><SCRIPT>alert(1)</SCRIPT></html>`),
			clean:      false,
			threatType: ThreatTypeSuspicious,
		},
		{
			name:       "eval marker",
			content:    []byte(`x = eval(payload)`),
			clean:      false,
			threatType: ThreatTypeSuspicious,
		},
		{
			name:       "powershell marker",
			content:    []byte("powershell -enc aGVsbG8="),
			clean:      false,
			threatType: ThreatTypeSuspicious,
		},
		{
			name:    "binary without markers",
			content: []byte{0x00, 0x01, 0xff, 0xfe, 0x7f},
			clean:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scanner.Scan(tt.content, "test-object")
			assert.Equal(t, tt.clean, result.Clean)
			assert.Equal(t, "test-object", result.ObjectName)
			if !tt.clean {
				assert.NotEmpty(t, result.ThreatName)
				assert.Equal(t, tt.threatType, result.ThreatType)
			}
			assert.False(t, result.ScannedAt.IsZero())
		})
	}
}

func TestScanner_SignatureIsCaseSensitive(t *testing.T) {
	scanner := NewScanner()

	// A lowercased signature is no longer an exact match; it must not be
	// reported as malware.
	lowered := []byte("x5o!p%@ap[4\\pzx54(p^)7cc)7}$eicar-standard-antivirus-test-file!$h+h*")
	result := scanner.Scan(lowered, "lowered")
	assert.NotEqual(t, ThreatTypeMalware, result.ThreatType)
}

func TestScanner_ScanIsPure(t *testing.T) {
	scanner := NewScanner()

	content := []byte("hello world")
	original := append([]byte(nil), content...)

	scanner.Scan(content, "a")
	scanner.Scan(content, "a")

	assert.Equal(t, original, content)
}
