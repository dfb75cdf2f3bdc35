package classifier

import "strings"

// Fingerprint describes a known drive model family
type Fingerprint struct {
	Pattern    string // normalized substring matched against the model string
	Vendor     string
	Enterprise bool
	ZNS        bool
}

// ultraFastSignatures are persistent-memory and Optane-class model prefixes.
// A model matches when its normalized form equals or starts with an entry.
var ultraFastSignatures = []string{
	"INTEL OPTANE",
	"OPTANE",
	"INTEL SSDPF21Q", // P5800X
	"SSDPF21Q",
	"INTEL SSDPE21K", // DC P4800X
	"SSDPE21K",
	"INTEL SSDPE21D", // 900P / 905P
	"SSDPE21D",
	"INTEL SSDPED1D",
	"SSDPED1D",
	"PMEM",
	"INTEL PMEM",
	"NVDIMM",
	"PERSISTENT MEMORY",
}

// builtinFingerprints is the model database consulted for vendor and
// enterprise information. Order matters: first match wins.
var builtinFingerprints = []Fingerprint{
	{Pattern: "OPTANE", Vendor: "Intel", Enterprise: true},
	{Pattern: "P5800X", Vendor: "Intel", Enterprise: true},
	{Pattern: "P4800X", Vendor: "Intel", Enterprise: true},
	{Pattern: "PM1733", Vendor: "Samsung", Enterprise: true},
	{Pattern: "PM1735", Vendor: "Samsung", Enterprise: true},
	{Pattern: "PM9A3", Vendor: "Samsung", Enterprise: true},
	{Pattern: "980 PRO", Vendor: "Samsung"},
	{Pattern: "990 PRO", Vendor: "Samsung"},
	{Pattern: "870 EVO", Vendor: "Samsung"},
	{Pattern: "P5510", Vendor: "Solidigm", Enterprise: true},
	{Pattern: "P5520", Vendor: "Solidigm", Enterprise: true},
	{Pattern: "MICRON 7450", Vendor: "Micron", Enterprise: true},
	{Pattern: "MICRON 9400", Vendor: "Micron", Enterprise: true},
	{Pattern: "SN850", Vendor: "Western Digital"},
	{Pattern: "ZN540", Vendor: "Western Digital", Enterprise: true, ZNS: true},
	{Pattern: "ULTRASTAR", Vendor: "Western Digital", Enterprise: true},
	{Pattern: "HGST", Vendor: "Western Digital", Enterprise: true},
	{Pattern: "EXOS", Vendor: "Seagate", Enterprise: true},
	{Pattern: "WD RED", Vendor: "Western Digital"},
	{Pattern: "BARRACUDA", Vendor: "Seagate"},
}

// normalizeModel upper-cases the model and collapses internal whitespace
func normalizeModel(model string) string {
	return strings.Join(strings.Fields(strings.ToUpper(model)), " ")
}

// IsUltraFastModel reports whether model matches the persistent-memory table
func IsUltraFastModel(model string) bool {
	m := normalizeModel(model)
	if m == "" {
		return false
	}
	for _, sig := range ultraFastSignatures {
		if m == sig || strings.HasPrefix(m, sig) {
			return true
		}
	}
	return false
}

// Lookup returns the first fingerprint whose pattern occurs in model
func Lookup(model string) (Fingerprint, bool) {
	m := normalizeModel(model)
	if m == "" {
		return Fingerprint{}, false
	}
	for _, fp := range builtinFingerprints {
		if strings.Contains(m, fp.Pattern) {
			return fp, true
		}
	}
	return Fingerprint{}, false
}
