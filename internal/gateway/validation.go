package gateway

import (
	"fmt"
	"mime"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxPrinterNameLength is the longest printer name accepted
const MaxPrinterNameLength = 255

// unsafeNameChars may not appear in a printer name; they would be
// interpreted by shells or break CUPS queue URIs.
const unsafeNameChars = "/\\;&|><*$`\"'"

// ValidatePrinterName validates a user-supplied printer name.
// Names must be non-empty, at most 255 characters and free of shell
// metacharacters, quotes and path separators.
func ValidatePrinterName(name string) error {
	if name == "" {
		return NewValidationError("printer name cannot be empty")
	}
	if n := utf8.RuneCountInString(name); n > MaxPrinterNameLength {
		return NewValidationError(fmt.Sprintf("printer name too long (max %d chars): %d chars", MaxPrinterNameLength, n))
	}
	if i := strings.IndexAny(name, unsafeNameChars); i >= 0 {
		return NewValidationError(fmt.Sprintf("printer name contains invalid character %q", name[i]))
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return NewValidationError("printer name contains control characters")
		}
	}
	return nil
}

// ValidateAddress validates a printer network address: an IP literal,
// a hostname, or either of those followed by :port.
func ValidateAddress(address string) error {
	if address == "" {
		return NewValidationError("printer address cannot be empty")
	}
	if len(address) > 253+6 {
		return NewValidationError("printer address too long")
	}
	if strings.ContainsAny(address, unsafeNameChars) || strings.IndexFunc(address, unicode.IsSpace) >= 0 {
		return NewValidationError(fmt.Sprintf("printer address contains invalid characters: %q", address))
	}

	if net.ParseIP(strings.Trim(address, "[]")) != nil {
		return nil
	}

	host := address
	if h, p, err := net.SplitHostPort(address); err == nil {
		port, perr := strconv.Atoi(p)
		if perr != nil || port < 1 || port > 65535 {
			return NewValidationError(fmt.Sprintf("invalid port in printer address: %q", p))
		}
		if net.ParseIP(h) != nil {
			return nil
		}
		host = h
	}

	if !validHostname(host) {
		return NewValidationError(fmt.Sprintf("invalid printer address: %q", address))
	}
	return nil
}

// validHostname checks RFC 1123 label syntax.
func validHostname(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if host == "" || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, c := range label {
			if !(c == '-' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')) {
				return false
			}
		}
	}
	return true
}

// IsPDF reports whether an upload looks like a PDF, judged by its media
// type or, failing that, its file extension.
func IsPDF(contentType, filename string) bool {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/pdf" {
			return true
		}
	}
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}
