package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/fenilsonani/mailbridge/internal/profile"
	"github.com/fenilsonani/mailbridge/internal/validation"
)

type addProfileRequest struct {
	Name       string `json:"name" validate:"required,profilename"`
	IMAPServer string `json:"imap_server" validate:"required,host"`
	SMTPServer string `json:"smtp_server" validate:"required,host"`
	Username   string `json:"username" validate:"required"`
	Password   string `json:"password" validate:"required"`
	IMAPPort   int    `json:"imap_port" validate:"port"`
	SMTPPort   int    `json:"smtp_port" validate:"port"`
	IMAPSSL    bool   `json:"imap_ssl"`
	SMTPTLS    bool   `json:"smtp_tls"`
	SetDefault bool   `json:"set_default"`
}

type nameRequest struct {
	Name string `json:"name" validate:"required"`
}

func (s *Session) executeProfile(ctx context.Context, command string, args Args) Response {
	switch command {
	case "list":
		return s.profileList()
	case "add":
		return s.profileAdd(ctx, args)
	case "remove":
		return s.profileRemove(args)
	case "set-default":
		return s.profileSetDefault(args)
	case "show":
		return s.profileShow(args)
	}
	return failure("Unknown command: %s", command)
}

func notFound(err error, name string) Response {
	if errors.Is(err, profile.ErrProfileNotFound) {
		return failure("Profile not found: %s", name)
	}
	return failure("Failed to save profiles: %v", err)
}

func (s *Session) profileList() Response {
	profiles := s.profiles.List()
	masked := make([]profile.Profile, len(profiles))
	for i, p := range profiles {
		masked[i] = p.Masked()
	}

	var def any
	if name := s.profiles.DefaultName(); name != "" {
		def = name
	}
	return success(map[string]any{
		"profiles":        masked,
		"default_profile": def,
		"count":           len(masked),
	})
}

func (s *Session) profileAdd(ctx context.Context, args Args) Response {
	req := addProfileRequest{
		Name:       args.String("name"),
		IMAPServer: args.String("imap_server"),
		SMTPServer: args.String("smtp_server"),
		Username:   args.String("username"),
		Password:   args.String("password"),
	}
	var err error
	if req.IMAPPort, err = args.Int("imap_port", 993); err != nil {
		return fail("", err)
	}
	if req.SMTPPort, err = args.Int("smtp_port", 587); err != nil {
		return fail("", err)
	}
	if req.IMAPSSL, err = args.Bool("imap_ssl", true); err != nil {
		return fail("", err)
	}
	if req.SMTPTLS, err = args.Bool("smtp_tls", true); err != nil {
		return fail("", err)
	}
	if req.SetDefault, err = args.Bool("set_default", false); err != nil {
		return fail("", err)
	}
	if err := validation.Struct(&req); err != nil {
		return fail("", err)
	}

	p := profile.Profile{
		Name:       req.Name,
		IMAPServer: req.IMAPServer,
		SMTPServer: req.SMTPServer,
		Username:   req.Username,
		Password:   req.Password,
		IMAPPort:   req.IMAPPort,
		SMTPPort:   req.SMTPPort,
		IMAPSSL:    req.IMAPSSL,
		SMTPTLS:    req.SMTPTLS,
	}
	if err := s.profiles.Add(p); err != nil {
		return failure("Failed to save profiles: %v", err)
	}
	if req.SetDefault {
		if err := s.profiles.SetDefault(p.Name); err != nil {
			return notFound(err, p.Name)
		}
	}
	s.logger.InfoContext(ctx, "Profile added", "profile", p.Name)

	return success(map[string]any{
		"profile": p.Name,
		"default": s.profiles.DefaultName() == p.Name,
		"message": fmt.Sprintf("Profile '%s' added successfully", p.Name),
	})
}

func (s *Session) profileRemove(args Args) Response {
	req := nameRequest{Name: args.String("name")}
	if err := validation.Struct(&req); err != nil {
		return fail("", err)
	}
	if err := s.profiles.Remove(req.Name); err != nil {
		return notFound(err, req.Name)
	}
	return success(map[string]any{
		"profile": req.Name,
		"message": fmt.Sprintf("Profile '%s' removed successfully", req.Name),
	})
}

func (s *Session) profileSetDefault(args Args) Response {
	req := nameRequest{Name: args.String("name")}
	if err := validation.Struct(&req); err != nil {
		return fail("", err)
	}
	if err := s.profiles.SetDefault(req.Name); err != nil {
		return notFound(err, req.Name)
	}
	return success(map[string]any{
		"default": req.Name,
		"message": fmt.Sprintf("Default profile set to '%s'", req.Name),
	})
}

func (s *Session) profileShow(args Args) Response {
	name := args.String("name")
	if name == "" {
		name = s.profiles.DefaultName()
		if name == "" {
			return failure("No profile name given and no default profile set")
		}
	}

	p, ok := s.profiles.Get(name)
	if !ok {
		return failure("Profile not found: %s", name)
	}
	return success(p.Masked())
}
