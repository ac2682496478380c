package signal

import (
	"math"
	"regexp"
	"slices"
	"strings"
)

// Categories for string and runtime call classification.
const (
	CatURL       = "url"
	CatHost      = "host"
	CatNet       = "net"
	CatFile      = "file"
	CatSave      = "save"
	CatRegistry  = "registry"
	CatExec      = "exec"
	CatDLL       = "dll"
	CatAuth      = "auth"
	CatEncoding  = "encoding"
	CatBase64Key = "base64"
	CatCheat     = "cheat"
	CatDebug     = "debug"
)

var (
	reURL       = regexp.MustCompile(`(?i)(https?|ftp)://`)
	reIPLiteral = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`)
	reBase64    = regexp.MustCompile(`^[A-Za-z0-9+/=]{16,}$`)
	reHostPort  = regexp.MustCompile(`(?i)^[a-z0-9.-]+\.(com|net|org|de|co\.uk|io):\d{2,5}$`)

	// Word-boundary matches keep "key" out of "monkey" and "pass" out of "compass".
	reAuth = regexp.MustCompile(`(?i)(^|[^a-z])(password|passwd|serial|licen[cs]e|regcode|unlock code|activation|cd.?key|login)([^a-z]|$)`)

	reEncoding = regexp.MustCompile(`(?i)(^|[^a-z])(xor|encrypt|decrypt|cipher|checksum|crc32|md5|rot13|scramble)([^a-z]|$)`)

	reCheat = regexp.MustCompile(`(?i)(^|[^a-z])(cheat|godmode|god mode|noclip|debug ?mode|invincib|all weapons|level skip)([^a-z]|$)`)

	reRegistry = regexp.MustCompile(`(?i)(HKEY_[A-Z_]+|\\software\\|regedit)`)

	netKeywords = []string{
		"http/1.", "user-agent", "content-length", "host:",
		"highscore server", "hiscore", "tcpstream", "udpstream",
	}

	saveExtensions = []string{".sav", ".save", ".cfg", ".ini", ".dat", ".hi", ".scr", ".txt"}

	assetExtensions = []string{
		".bmp", ".png", ".jpg", ".jpeg", ".tga", ".pcx", ".dds",
		".wav", ".ogg", ".mp3", ".mid", ".mod", ".xm", ".it", ".s3m",
		".b3d", ".3ds", ".x", ".md2",
		".bb", ".bbc", ".zip", ".pak",
	}

	execExtensions = []string{".exe", ".bat", ".cmd", ".vbs", ".dll"}
)

// runtimeCats maps BlitzBasic runtime command names (without the _bb
// prefix, lowercased) to the category of behavior they expose.
var runtimeCats = map[string]string{
	"opentcpstream": CatNet, "createtcpserver": CatNet, "accepttcpstream": CatNet,
	"createudpstream": CatNet, "sendudpmsg": CatNet, "recvudpmsg": CatNet,
	"dottedip": CatNet, "hostip": CatNet, "counthostips": CatNet,
	"startnetgame": CatNet, "hostnetgame": CatNet, "joinnetgame": CatNet,
	"sendnetmsg": CatNet, "recvnetmsg": CatNet,

	"writefile": CatFile, "openfile": CatFile, "deletefile": CatFile,
	"copyfile": CatFile, "createdir": CatFile, "deletedir": CatFile,
	"readdir": CatFile, "nextfile": CatFile, "changedir": CatFile,

	"execfile": CatExec, "systemproperty": CatExec, "getenv": CatExec, "setenv": CatExec,

	"calldll": CatDLL,

	"debuglog": CatDebug, "runtimeerror": CatDebug, "stop": CatDebug,
}

// ClassifyString returns the set of signal categories matching the value.
// Returns nil if the string carries no signal.
func ClassifyString(value string) []string {
	if len(value) < 2 {
		return nil
	}

	var cats []string
	lower := strings.ToLower(value)

	if reURL.MatchString(value) {
		cats = append(cats, CatURL)
	}
	if reIPLiteral.MatchString(value) || reHostPort.MatchString(value) {
		cats = append(cats, CatHost)
	}
	for _, w := range netKeywords {
		if strings.Contains(lower, w) {
			cats = append(cats, CatNet)
			break
		}
	}

	switch {
	case hasExtension(lower, execExtensions):
		cats = append(cats, CatExec)
	case hasExtension(lower, saveExtensions):
		cats = append(cats, CatSave)
	case hasExtension(lower, assetExtensions):
		cats = append(cats, CatFile)
	}

	if reRegistry.MatchString(value) {
		cats = append(cats, CatRegistry)
	}
	if reAuth.MatchString(value) {
		cats = append(cats, CatAuth)
	}
	if reEncoding.MatchString(value) {
		cats = append(cats, CatEncoding)
	}
	if reCheat.MatchString(value) {
		cats = append(cats, CatCheat)
	}

	// Exclude camelCase identifiers which match the character set but aren't keys.
	trimmed := strings.TrimSpace(value)
	if reBase64.MatchString(trimmed) && entropy(value) > 3.5 && !isCamelCase(trimmed) {
		cats = append(cats, CatBase64Key)
	}
	return cats
}

// ClassifyRuntimeCall returns the category of a call target, or "" for
// runtime commands that carry no signal. Targets of DLL import stubs are
// classified as CatDLL.
func ClassifyRuntimeCall(target string, isDLL bool) string {
	if isDLL {
		return CatDLL
	}
	name, ok := strings.CutPrefix(target, "_bb")
	if !ok {
		name, ok = strings.CutPrefix(target, "__bb")
	}
	if !ok {
		return ""
	}
	return runtimeCats[strings.ToLower(name)]
}

// Severity levels for signal categories.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// CategorySeverity returns the severity level for a category.
func CategorySeverity(cat string) string {
	switch cat {
	case CatNet, CatExec, CatDLL, CatRegistry, CatAuth:
		return SeverityHigh
	case CatURL, CatHost, CatEncoding, CatBase64Key, CatCheat:
		return SeverityMedium
	}
	return SeverityLow
}

// MaxSeverity returns the highest severity from a list of categories.
func MaxSeverity(categories []string) string {
	best := SeverityLow
	for _, c := range categories {
		switch CategorySeverity(c) {
		case SeverityHigh:
			return SeverityHigh
		case SeverityMedium:
			best = SeverityMedium
		}
	}
	return best
}

func hasExtension(lower string, exts []string) bool {
	for _, ext := range exts {
		if strings.HasSuffix(lower, ext) || strings.Contains(lower, ext+" ") || strings.Contains(lower, ext+",") {
			return true
		}
	}
	return false
}

// isCamelCase returns true if the string looks like a camelCase/PascalCase identifier.
func isCamelCase(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i-1] >= 'a' && s[i-1] <= 'z' && s[i] >= 'A' && s[i] <= 'Z' {
			return true
		}
	}
	return false
}

func containsCat(cats []string, cat string) bool {
	return slices.Contains(cats, cat)
}

// entropy computes Shannon entropy of a string in bits per character.
func entropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	freq := make(map[byte]int)
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	n := float64(len(s))
	var ent float64
	for _, count := range freq {
		p := float64(count) / n
		ent -= p * math.Log2(p)
	}
	return ent
}
