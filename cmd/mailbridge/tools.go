package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fenilsonani/mailbridge/internal/commands"
)

// flagName maps a parameter name onto its command-line flag.
func flagName(param string) string {
	return strings.ReplaceAll(param, "_", "-")
}

// toolCommand builds the command group of one tool from its parameter table.
func toolCommand(tool, short string) *cobra.Command {
	var describe bool

	group := &cobra.Command{
		Use:   tool,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !describe {
				return cmd.Help()
			}
			d, _ := commands.Describe(tool)
			return printJSON(cmd.OutOrStdout(), d)
		},
	}
	group.Flags().BoolVar(&describe, "describe", false, "print the tool description as JSON")

	for _, c := range commands.Commands(tool) {
		group.AddCommand(subcommand(tool, c))
	}
	return group
}

func subcommand(tool string, c commands.Command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   c.Name,
		Short: c.Description,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdArgs, err := argsFromFlags(cmd.Flags(), c.Parameters)
			if err != nil {
				return err
			}

			s, release, err := newSession()
			if err != nil {
				return err
			}
			defer release()

			ctx, cancel := signalContext()
			defer cancel()

			resp := s.Execute(ctx, tool, c.Name, cmdArgs)
			if resp.Failed() {
				exitCode = 1
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	addFlags(cmd.Flags(), c.Parameters)
	return cmd
}

func addFlags(flags *pflag.FlagSet, params []commands.Param) {
	for _, p := range params {
		usage := p.Description
		if p.Required {
			usage += " (required)"
		}

		name := flagName(p.Name)
		switch p.Type {
		case commands.TypeInteger:
			def, _ := p.Default.(int)
			flags.Int(name, def, usage)
		case commands.TypeBoolean:
			def, _ := p.Default.(bool)
			flags.Bool(name, def, usage)
		case commands.TypeArray:
			flags.StringSlice(name, nil, usage)
		default:
			def, _ := p.Default.(string)
			flags.String(name, def, usage)
		}
	}
}

// argsFromFlags collects the flags set on the command line. Unset flags are
// left out so the command layer applies its own defaults and fallbacks.
func argsFromFlags(flags *pflag.FlagSet, params []commands.Param) (commands.Args, error) {
	args := commands.Args{}
	for _, p := range params {
		name := flagName(p.Name)
		if !flags.Changed(name) {
			continue
		}

		var (
			v   any
			err error
		)
		switch p.Type {
		case commands.TypeInteger:
			v, err = flags.GetInt(name)
		case commands.TypeBoolean:
			v, err = flags.GetBool(name)
		case commands.TypeArray:
			v, err = flags.GetStringSlice(name)
		default:
			v, err = flags.GetString(name)
		}
		if err != nil {
			return nil, fmt.Errorf("flag --%s: %w", name, err)
		}
		args[p.Name] = v
	}
	return args, nil
}
