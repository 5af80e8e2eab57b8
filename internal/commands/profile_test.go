package commands

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fenilsonani/mailbridge/internal/profile"
)

var profileFixture = profile.Profile{
	Name:       "work",
	IMAPServer: "imap.work.example",
	SMTPServer: "smtp.work.example",
	Username:   "me@work.example",
	Password:   "pw",
	IMAPPort:   993,
	SMTPPort:   587,
	IMAPSSL:    true,
	SMTPTLS:    true,
}

func addArgs(name string) Args {
	return Args{
		"name":        name,
		"imap_server": "imap.work.example",
		"smtp_server": "smtp.work.example",
		"username":    "me@work.example",
		"password":    "pw",
	}
}

func TestProfile_Lifecycle(t *testing.T) {
	env := newTestEnv(t)

	result := resultMap(t, env.run(ToolProfile, "list", nil))
	if result["count"] != 0 || result["default_profile"] != nil {
		t.Errorf("empty list = %v", result)
	}

	add := addArgs("work")
	add["set_default"] = true
	result = resultMap(t, env.run(ToolProfile, "add", add))
	if result["default"] != true || result["message"] != "Profile 'work' added successfully" {
		t.Errorf("add result = %v", result)
	}
	resultMap(t, env.run(ToolProfile, "add", addArgs("personal")))

	result = resultMap(t, env.run(ToolProfile, "list", nil))
	profiles := result["profiles"].([]profile.Profile)
	if len(profiles) != 2 || profiles[0].Name != "personal" || profiles[1].Name != "work" {
		t.Fatalf("profiles = %+v, want personal, work", profiles)
	}
	for _, p := range profiles {
		if p.Password != "***" {
			t.Errorf("%s password = %q, want masked", p.Name, p.Password)
		}
	}
	if result["default_profile"] != "work" {
		t.Errorf("default_profile = %v, want work", result["default_profile"])
	}

	resp := env.run(ToolProfile, "show", nil)
	if p, ok := resp.Result.(profile.Profile); !ok || p.Name != "work" || p.Password != "***" {
		t.Errorf("show default = %#v", resp.Result)
	}

	resultMap(t, env.run(ToolProfile, "set-default", Args{"name": "personal"}))
	reloaded := profile.NewManager(env.profiles.Path(), nil)
	if reloaded.DefaultName() != "personal" {
		t.Errorf("persisted default = %q, want personal", reloaded.DefaultName())
	}

	resultMap(t, env.run(ToolProfile, "remove", Args{"name": "personal"}))
	if resp := env.run(ToolProfile, "show", nil); resp.Error != "No profile name given and no default profile set" {
		t.Errorf("show after removing default Error = %q", resp.Error)
	}
}

func TestProfile_Errors(t *testing.T) {
	env := newTestEnv(t)

	badPort := addArgs("work")
	badPort["imap_port"] = 70000
	badHost := addArgs("work")
	badHost["smtp_server"] = "smtp..example"
	noServer := addArgs("work")
	delete(noServer, "imap_server")

	tests := []struct {
		name    string
		command string
		args    Args
		want    string
	}{
		{"add bad port", "add", badPort, "Invalid port: 70000 (must be 1-65535)"},
		{"add bad host", "add", badHost, "Invalid host for smtp_server: smtp..example"},
		{"add missing server", "add", noServer, "Missing required argument: imap_server"},
		{"add bad name", "add", addArgs("my work"), "Invalid profile name: my work"},
		{"remove missing name", "remove", nil, "Missing required argument: name"},
		{"remove unknown", "remove", Args{"name": "ghost"}, "Profile not found: ghost"},
		{"set-default unknown", "set-default", Args{"name": "ghost"}, "Profile not found: ghost"},
		{"show unknown", "show", Args{"name": "ghost"}, "Profile not found: ghost"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.run(ToolProfile, tt.command, tt.args)
			if !strings.HasPrefix(resp.Error, tt.want) {
				t.Errorf("Error = %q, want prefix %q", resp.Error, tt.want)
			}
		})
	}
	if len(env.profiles.Names()) != 0 {
		t.Errorf("profiles = %v, want none stored", env.profiles.Names())
	}
}

func TestProfile_SaveFailure(t *testing.T) {
	env := newTestEnv(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	env.session.profiles = profile.NewManager(filepath.Join(blocker, "accounts.json"), nil)

	resp := env.run(ToolProfile, "add", addArgs("work"))
	if !strings.HasPrefix(resp.Error, "Failed to save profiles: ") {
		t.Errorf("Error = %q, want save failure", resp.Error)
	}
}
