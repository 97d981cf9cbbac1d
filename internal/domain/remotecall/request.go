package remotecall

import (
	"fmt"
	"strings"
	"unicode"
)

// OSFamily names the operating system of the target host.
type OSFamily string

const (
	OSLinux   OSFamily = "linux"
	OSWindows OSFamily = "windows"
)

// Mode selects between running an inline command and staging a local script.
type Mode string

const (
	ModeCommand Mode = "command"
	ModeScript  Mode = "script"
)

// Default ports applied when a request leaves port unset.
const (
	DefaultSSHPort        = 22
	DefaultWinRMHTTPPort  = 5985
	DefaultWinRMHTTPSPort = 5986
	linuxGroupName        = "linux_servers"
	windowsGroupName      = "windows_servers"
	fallbackGroupName     = "target"
)

// Input carries the raw fields of an inbound remote call before
// normalisation. Pointer fields distinguish "absent" from zero values.
type Input struct {
	OSType     string  `json:"os_type" validate:"required"`
	IP         string  `json:"ip" validate:"required,ip"`
	Username   string  `json:"username" validate:"required"`
	Password   *string `json:"password,omitempty"`
	Port       *int    `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Command    *string `json:"command,omitempty"`
	FilePath   *string `json:"file_path,omitempty"`
	UseBastion *bool   `json:"use_bastion,omitempty"`
}

// Request is the normalised, immutable context of one remote call.
type Request struct {
	os         OSFamily
	host       string
	port       int
	username   string
	password   *string
	command    string
	filePath   string
	useBastion bool
}

// NewRequest normalises an Input. Blank command and file_path values are
// treated as absent, use_bastion defaults to true and the port defaults by
// OS family and auth type. Mode ambiguity is not checked here; Resolve
// reports it so that it surfaces before any backend call.
func NewRequest(in Input) (Request, error) {
	osType := OSFamily(strings.ToLower(strings.TrimSpace(in.OSType)))
	if osType == "" {
		return Request{}, NewValidationError("os_type", "os_type is required")
	}
	host := strings.TrimSpace(in.IP)
	if host == "" {
		return Request{}, NewValidationError("ip", "ip is required")
	}
	if !inventorySafe(host) {
		return Request{}, NewValidationError("ip", "ip contains characters not allowed in an inventory value")
	}
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return Request{}, NewValidationError("username", "username is required")
	}
	if !inventorySafe(username) {
		return Request{}, NewValidationError("username", "username must not contain whitespace, quotes, backslashes, '=' or '#'")
	}

	req := Request{
		os:         osType,
		host:       host,
		username:   username,
		command:    trimmed(in.Command),
		filePath:   trimmed(in.FilePath),
		useBastion: true,
	}
	if in.Password != nil {
		password := *in.Password
		if password != "" && !inventorySafe(password) {
			return Request{}, NewValidationError("password", "password must not contain whitespace, quotes, backslashes, '=' or '#'")
		}
		req.password = &password
	}
	if in.UseBastion != nil {
		req.useBastion = *in.UseBastion
	}

	if in.Port != nil {
		if *in.Port < 1 || *in.Port > 65535 {
			return Request{}, NewValidationError("port", fmt.Sprintf("port %d out of range", *in.Port))
		}
		req.port = *in.Port
	} else {
		req.port = defaultPort(osType, req.IsPasswordAuth())
	}

	return req, nil
}

// inventorySafe reports whether value can sit in an INI host line without
// splitting into further host variables.
func inventorySafe(value string) bool {
	return !strings.ContainsFunc(value, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r) || strings.ContainsRune(`'"\=#`, r)
	})
}

func trimmed(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func defaultPort(os OSFamily, password bool) int {
	if os != OSWindows {
		return DefaultSSHPort
	}
	if password {
		return DefaultWinRMHTTPPort
	}
	return DefaultWinRMHTTPSPort
}

// OS returns the target OS family.
func (r Request) OS() OSFamily { return r.os }

// Host returns the target address.
func (r Request) Host() string { return r.host }

// Port returns the effective target port.
func (r Request) Port() int { return r.port }

// Username returns the remote login.
func (r Request) Username() string { return r.username }

// Password returns the password and whether one was supplied.
func (r Request) Password() (string, bool) {
	if r.password == nil {
		return "", false
	}
	return *r.password, true
}

// Command returns the inline command, empty when absent.
func (r Request) Command() string { return r.command }

// FilePath returns the local script path, empty when absent.
func (r Request) FilePath() string { return r.filePath }

// UseBastion reports whether the connection is routed through the bastion.
func (r Request) UseBastion() bool { return r.useBastion }

// IsPasswordAuth reports whether the request authenticates with a password.
func (r Request) IsPasswordAuth() bool { return r.password != nil }

// NeedsLeasedKey reports whether a private key must be fetched from the
// bastion before the call can run.
func (r Request) NeedsLeasedKey() bool {
	return r.useBastion && !r.IsPasswordAuth()
}

// Mode determines whether the request runs a command or a script.
func (r Request) Mode() (Mode, error) {
	hasCommand := r.command != ""
	hasScript := r.filePath != ""
	switch {
	case hasCommand && !hasScript:
		return ModeCommand, nil
	case hasScript && !hasCommand:
		return ModeScript, nil
	default:
		return "", NewAmbiguousModeError()
	}
}

// GroupName is the inventory group and backend host pattern for the request.
func (r Request) GroupName() string {
	switch r.os {
	case OSLinux:
		return linuxGroupName
	case OSWindows:
		return windowsGroupName
	default:
		return fallbackGroupName
	}
}

// Summary returns loggable request attributes. The password is never included.
func (r Request) Summary() map[string]interface{} {
	mode, _ := r.Mode()
	return map[string]interface{}{
		"os_type":     string(r.os),
		"ip":          r.host,
		"port":        r.port,
		"username":    r.username,
		"mode":        string(mode),
		"use_bastion": r.useBastion,
		"auth":        r.authKind(),
	}
}

func (r Request) authKind() string {
	if r.IsPasswordAuth() {
		return "password"
	}
	return "key"
}
