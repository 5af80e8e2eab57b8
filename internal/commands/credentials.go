package commands

import (
	"github.com/fenilsonani/mailbridge/internal/profile"
	"github.com/fenilsonani/mailbridge/internal/validation"
)

// protocolKeys describes where one protocol reads its connection settings.
type protocolKeys struct {
	defaultPort int
	secureKey   string
	userEnv     []string
	passEnv     []string
	fromProfile func(p profile.Profile) (server string, port int, secure bool)
}

var imapKeys = protocolKeys{
	defaultPort: 993,
	secureKey:   "use_ssl",
	userEnv:     []string{"IMAP_USERNAME"},
	passEnv:     []string{"IMAP_PASSWORD"},
	fromProfile: func(p profile.Profile) (string, int, bool) {
		return p.IMAPServer, p.IMAPPort, p.IMAPSSL
	},
}

var smtpKeys = protocolKeys{
	defaultPort: 587,
	secureKey:   "use_tls",
	userEnv:     []string{"SMTP_USERNAME", "IMAP_USERNAME"},
	passEnv:     []string{"SMTP_PASSWORD", "IMAP_PASSWORD"},
	fromProfile: func(p profile.Profile) (string, int, bool) {
		return p.SMTPServer, p.SMTPPort, p.SMTPTLS
	},
}

// credentials is a resolved connection target.
type credentials struct {
	Server   string
	Username string
	Password string
	Port     int
	Secure   bool

	// Profile is set when the settings came from a stored profile.
	Profile *profile.Profile
}

func (c credentials) complete() bool {
	return c.Server != "" && c.Username != "" && c.Password != ""
}

func (s *Session) firstEnv(names []string) string {
	for _, name := range names {
		if v := s.getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// resolve picks connection settings: a named account, then explicit
// arguments with environment credentials, then the default profile.
func (s *Session) resolve(args Args, keys protocolKeys) (credentials, error) {
	fromProfile := func(p profile.Profile) credentials {
		c := credentials{Username: p.Username, Password: p.Password, Profile: &p}
		c.Server, c.Port, c.Secure = keys.fromProfile(p)
		return c
	}

	if name := args.String("account"); name != "" {
		p, ok := s.profiles.Get(name)
		if !ok {
			return credentials{}, newCommandError("Profile not found: %s", name)
		}
		return fromProfile(p), nil
	}

	port, err := args.Int("port", keys.defaultPort)
	if err != nil {
		return credentials{}, err
	}
	secure, err := args.Bool(keys.secureKey, true)
	if err != nil {
		return credentials{}, err
	}

	c := credentials{
		Server:   args.String("server"),
		Username: args.String("username"),
		Password: args.String("password"),
		Port:     port,
		Secure:   secure,
	}
	if c.Username == "" {
		c.Username = s.firstEnv(keys.userEnv)
	}
	if c.Password == "" {
		c.Password = s.firstEnv(keys.passEnv)
	}

	if c.Server == "" && c.Username == "" && c.Password == "" {
		if p, ok := s.profiles.Default(); ok {
			return fromProfile(p), nil
		}
	}
	return c, nil
}

// check validates resolved settings before any network I/O.
func (c credentials) check() error {
	if err := validation.Port(c.Port); err != nil {
		return &validation.ArgumentError{Field: "port", Message: err.Error()}
	}
	if err := validation.Host(c.Server); err != nil {
		return &validation.ArgumentError{Field: "server", Message: "Invalid server: " + c.Server}
	}
	return nil
}

// requireComplete names the first missing connection argument.
func (c credentials) requireComplete() error {
	switch {
	case c.Server == "":
		return validation.Missing("server")
	case c.Username == "":
		return validation.Missing("username")
	case c.Password == "":
		return validation.Missing("password")
	}
	return nil
}
