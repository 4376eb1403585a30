package security

import (
	"bytes"
	"time"

	"github.com/ruteri/storage-policy-backend/interfaces"
)

// Threat type labels reported in scan results.
const (
	ThreatTypeMalware    = "Malware"
	ThreatTypeSuspicious = "Suspicious content"
)

// eicarSignature is the standard antivirus test string. Any payload
// containing it is flagged as malware, which gives deterministic scanner
// behavior without shipping real signatures.
const eicarSignature = `X5O!P%@AP[4\PZX54(P^)7CC)7}$EICAR-STANDARD-ANTIVIRUS-TEST-FILE!$H+H*`

// signature is an exact, case-sensitive byte pattern with its threat name.
type signature struct {
	name    string
	pattern []byte
}

// Scanner inspects payloads for known threat signatures and suspicious
// textual markers. It is stateless and safe for concurrent use; scanning is a
// pure function of the input bytes.
type Scanner struct {
	signatures []signature
	markers    [][]byte
}

// NewScanner creates a scanner with the built-in signature and marker sets.
func NewScanner() *Scanner {
	return &Scanner{
		signatures: []signature{
			{name: "EICAR-Test-File", pattern: []byte(eicarSignature)},
		},
		markers: [][]byte{
			[]byte("<script"),
			[]byte("javascript:"),
			[]byte("eval("),
			[]byte("cmd.exe"),
			[]byte("powershell -enc"),
		},
	}
}

// Scan inspects a payload. Signature matches are case-sensitive and reported
// as malware; suspicious markers are matched case-insensitively and reported
// as suspicious content, a distinct threat type.
func (s *Scanner) Scan(content []byte, name string) interfaces.ScanResult {
	result := interfaces.ScanResult{
		ObjectName: name,
		Clean:      true,
		ScannedAt:  time.Now().UTC(),
	}

	for _, sig := range s.signatures {
		if bytes.Contains(content, sig.pattern) {
			result.Clean = false
			result.ThreatName = sig.name
			result.ThreatType = ThreatTypeMalware
			return result
		}
	}

	lowered := bytes.ToLower(content)
	for _, marker := range s.markers {
		if bytes.Contains(lowered, marker) {
			result.Clean = false
			result.ThreatName = string(marker)
			result.ThreatType = ThreatTypeSuspicious
			return result
		}
	}

	return result
}
