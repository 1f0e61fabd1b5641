package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// ServiceTypeIPP is the mDNS service type advertised by IPP printers
	ServiceTypeIPP = "_ipp._tcp.local."

	// ServiceTypeAirPrint is the mDNS service type advertised by AirPrint printers
	ServiceTypeAirPrint = "_airprint._tcp.local."

	// DefaultDomain is the mDNS domain used when a service type carries none
	DefaultDomain = "local."
)

// DefaultServiceTypes are the service types watched when none are configured.
var DefaultServiceTypes = []string{ServiceTypeIPP, ServiceTypeAirPrint}

// knownSuffixes are stripped from raw instance names to build display names.
var knownSuffixes = []string{
	"." + ServiceTypeIPP,
	"." + ServiceTypeAirPrint,
	"." + strings.TrimSuffix(ServiceTypeIPP, "."),
	"." + strings.TrimSuffix(ServiceTypeAirPrint, "."),
}

// PrinterRecord is a network printer found through mDNS.
// Records are keyed in the Registry by Key, the raw advertised instance name.
type PrinterRecord struct {
	// Key is the raw advertised name (e.g., "MyPrinter._ipp._tcp.local.")
	Key string `json:"-"`

	// Name is Key with the service-type suffix stripped (e.g., "MyPrinter")
	Name string `json:"name"`

	// Address is the first resolved address, IPv4 preferred
	Address string `json:"address"`

	// Port is the advertised IPP port
	Port int `json:"port"`

	// Properties holds the decoded TXT record
	// Common fields: "ty" (model), "note" (location), "usb_MFG", "pdl"
	Properties map[string]string `json:"properties"`

	// ServiceType is the watched type the record was found under
	ServiceType string `json:"-"`

	// DiscoveredAt is when the record was last resolved
	DiscoveredAt time.Time `json:"-"`
}

// String returns a human-readable string representation of the printer
func (p PrinterRecord) String() string {
	return fmt.Sprintf("%s at %s", p.Name, net.JoinHostPort(p.Address, strconv.Itoa(p.Port)))
}

// GetProperty retrieves a TXT property by key, or returns empty string if not found
func (p PrinterRecord) GetProperty(key string) string {
	if p.Properties == nil {
		return ""
	}
	return p.Properties[key]
}

// Manufacturer returns the best manufacturer/model hint carried in the TXT record.
func (p PrinterRecord) Manufacturer() string {
	for _, key := range []string{"usb_MFG", "manufacturer", "ty", "product"} {
		if v := strings.TrimSpace(p.GetProperty(key)); v != "" {
			return strings.Trim(v, "()")
		}
	}
	return ""
}

// clone returns a copy that shares no mutable state with p.
func (p PrinterRecord) clone() PrinterRecord {
	if p.Properties != nil {
		props := make(map[string]string, len(p.Properties))
		for k, v := range p.Properties {
			props[k] = v
		}
		p.Properties = props
	}
	return p
}

// ServiceInfo is the resolved form of an advertised service instance.
type ServiceInfo struct {
	Name      string
	HostName  string
	Addresses []net.IP
	Port      int
	Text      []string
}

// FirstAddress returns the first usable address, preferring IPv4.
func (s *ServiceInfo) FirstAddress() string {
	if s == nil {
		return ""
	}
	for _, ip := range s.Addresses {
		if ip.To4() != nil {
			return ip.String()
		}
	}
	for _, ip := range s.Addresses {
		if ip != nil && !ip.IsUnspecified() {
			return ip.String()
		}
	}
	return ""
}

// NewRecord builds a PrinterRecord for key from resolved service info.
// It returns false when the info carries no address or an invalid port, in
// which case the service is treated as not yet resolvable.
func NewRecord(key, serviceType string, info *ServiceInfo) (PrinterRecord, bool) {
	address := info.FirstAddress()
	if address == "" {
		return PrinterRecord{}, false
	}
	if info.Port < 1 || info.Port > 65535 {
		return PrinterRecord{}, false
	}

	return PrinterRecord{
		Key:          key,
		Name:         UnescapeName(StripServiceSuffix(key)),
		Address:      address,
		Port:         info.Port,
		Properties:   DecodeProperties(info.Text),
		ServiceType:  serviceType,
		DiscoveredAt: time.Now(),
	}, true
}

// StripServiceSuffix removes a known printer service-type suffix from a raw
// instance name. Names without a known suffix are returned unchanged.
func StripServiceSuffix(name string) string {
	for _, suffix := range knownSuffixes {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

// UnescapeName decodes DNS presentation-format escapes in an instance
// label: "\X" becomes X and "\DDD" becomes the byte with decimal value DDD.
// "HP\ LaserJet\ 4000" becomes "HP LaserJet 4000". Bytes that do not form
// valid UTF-8 are replaced.
func UnescapeName(name string) string {
	if !strings.Contains(name, `\`) {
		return name
	}

	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c != '\\' || i+1 >= len(name) {
			out = append(out, c)
			continue
		}
		if i+3 < len(name) && isDigit(name[i+1]) && isDigit(name[i+2]) && isDigit(name[i+3]) {
			n := int(name[i+1]-'0')*100 + int(name[i+2]-'0')*10 + int(name[i+3]-'0')
			if n <= 255 {
				out = append(out, byte(n))
				i += 3
				continue
			}
		}
		out = append(out, name[i+1])
		i++
	}
	return strings.ToValidUTF8(string(out), "\uFFFD")
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// DecodeProperties converts raw TXT strings into a text map.
// Each entry is split on the first '='; a key without '=' maps to "".
// Values that are not valid UTF-8 are replaced by their quoted display form.
func DecodeProperties(text []string) map[string]string {
	props := make(map[string]string, len(text))
	for _, txt := range text {
		if txt == "" {
			continue
		}
		key, value, _ := strings.Cut(txt, "=")
		if key == "" {
			continue
		}
		key = strings.ToValidUTF8(key, "�")
		if !utf8.ValidString(value) {
			value = strconv.QuoteToASCII(value)
		}
		props[key] = value
	}
	return props
}

// SplitServiceType splits "_ipp._tcp.local." into ("_ipp._tcp", "local.").
func SplitServiceType(serviceType string) (service, domain string) {
	trimmed := strings.TrimSuffix(serviceType, ".")
	parts := strings.Split(trimmed, ".")
	if len(parts) <= 2 {
		return trimmed, DefaultDomain
	}
	return strings.Join(parts[:2], "."), strings.Join(parts[2:], ".") + "."
}

// NormalizeServiceType expands "_ipp._tcp" into "_ipp._tcp.local.".
func NormalizeServiceType(serviceType string) string {
	service, domain := SplitServiceType(serviceType)
	return service + "." + domain
}

// InstanceName returns the instance label of a raw name for the given type,
// e.g. ("MyPrinter._ipp._tcp.local.", "_ipp._tcp.local.") -> "MyPrinter".
func InstanceName(name, serviceType string) string {
	full := NormalizeServiceType(serviceType)
	if strings.HasSuffix(name, "."+full) {
		return strings.TrimSuffix(name, "."+full)
	}
	return strings.TrimSuffix(name, "."+strings.TrimSuffix(full, "."))
}
