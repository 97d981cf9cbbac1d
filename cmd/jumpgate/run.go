package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
)

type runOptions struct {
	osType    string
	ip        string
	username  string
	password  string
	port      int
	command   string
	filePath  string
	noBastion bool
	output    string
}

func newRunCmd(rootFlags *rootFlags) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one remote call and print the response envelope",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, rootFlags, opts)
		},
	}

	bindRunFlags(cmd, opts)

	return cmd
}

func bindRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVar(&opts.osType, "os", "", "Target operating system (linux or windows)")
	cmd.Flags().StringVar(&opts.ip, "ip", "", "Target IP address")
	cmd.Flags().StringVarP(&opts.username, "user", "u", "", "Remote username")
	cmd.Flags().StringVar(&opts.password, "password", "", "Remote password (key auth through the bastion when omitted)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Remote port (defaults per OS)")
	cmd.Flags().StringVar(&opts.command, "command", "", "Command to run")
	cmd.Flags().StringVar(&opts.filePath, "file", "", "Script file to transfer and run")
	cmd.Flags().BoolVar(&opts.noBastion, "no-bastion", false, "Connect directly instead of through the bastion")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "text", "Output format: text or json")

	_ = cmd.MarkFlagRequired("os")
	_ = cmd.MarkFlagRequired("ip")
	_ = cmd.MarkFlagRequired("user")
	cmd.MarkFlagsMutuallyExclusive("command", "file")
}

func runRun(cmd *cobra.Command, rootFlags *rootFlags, opts *runOptions) error {
	if opts.output != "text" && opts.output != "json" {
		return newCommandError("run", "parsing flags", fmt.Errorf("unknown output format %q", opts.output), "Use --output text or --output json.")
	}

	a, err := buildApp(cmd.Context(), rootFlags, cmd.ErrOrStderr())
	if err != nil {
		return newCommandError("run", "loading configuration", err, "Run 'jumpgate validate' to check the configuration file.")
	}
	defer a.Close()

	env := a.useCase.Execute(cmd.Context(), inputFromFlags(cmd, opts))

	if err := renderEnvelope(cmd.OutOrStdout(), env, opts.output); err != nil {
		return newCommandError("run", "writing output", err, "Check that stdout is writable.")
	}
	if env.Error != nil {
		return &envelopeError{body: env.Error}
	}
	return nil
}

// inputFromFlags only sets optional fields whose flag was given.
func inputFromFlags(cmd *cobra.Command, opts *runOptions) remotecall.Input {
	in := remotecall.Input{
		OSType:   opts.osType,
		IP:       opts.ip,
		Username: opts.username,
	}
	flags := cmd.Flags()
	if flags.Changed("password") {
		in.Password = &opts.password
	}
	if flags.Changed("port") {
		in.Port = &opts.port
	}
	if flags.Changed("command") {
		in.Command = &opts.command
	}
	if flags.Changed("file") {
		in.FilePath = &opts.filePath
	}
	if flags.Changed("no-bastion") {
		useBastion := !opts.noBastion
		in.UseBastion = &useBastion
	}
	return in
}

func renderEnvelope(w io.Writer, env remotecall.Envelope, format string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}
	_, err := io.WriteString(w, renderText(env))
	return err
}

// envelopeError reports an error envelope as a non-zero exit.
type envelopeError struct {
	body *remotecall.ErrorBody
}

func (e *envelopeError) Error() string {
	return fmt.Sprintf("remote call failed: %s: %s", e.body.Code, e.body.Message)
}
