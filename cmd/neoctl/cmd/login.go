package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pilab-dev/neoproxy/cmd/neoctl/config"
	"github.com/pilab-dev/neoproxy/domain"
	"github.com/pilab-dev/neoproxy/internal/auth/totp"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errTOTPMismatch = errors.New("--totp does not match the code generated from --totp-secret (check the secret and the system clock)")

type loginFlags struct {
	mobile      string
	ucc         string
	consumerKey string
	totp        string
	totpSecret  string
	mpin        string
}

func newLoginCmd(flags *globalFlags) *cobra.Command {
	lf := &loginFlags{}

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the broker through the worker and save the session id",
		Long: `Runs the broker's TOTP login and MPIN validation on the worker. The TOTP is
taken from --totp, or generated from --totp-secret. When both are given the
code is checked against the secret before the worker is called. The MPIN is
prompted for when --mpin is not given. The returned session id is stored in the current
context.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			currentCtx, err := currentContext(flags)
			if err != nil {
				return err
			}

			code := lf.totp
			switch {
			case code != "" && lf.totpSecret != "":
				// A code that does not match the secret would burn a login attempt.
				if !totp.Validate(code, lf.totpSecret, time.Now()) {
					return errTOTPMismatch
				}
			case lf.totpSecret != "":
				code, err = totp.Code(lf.totpSecret, time.Now())
				if err != nil {
					return err
				}
			}
			if code == "" {
				return fmt.Errorf("either --totp or --totp-secret is required")
			}

			mpin := lf.mpin
			if mpin == "" {
				mpin, err = promptSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), "Enter MPIN: ")
				if err != nil {
					return fmt.Errorf("failed to read MPIN: %w", err)
				}
			}

			creds := domain.Credentials{
				TOTP:         code,
				ConsumerKey:  lf.consumerKey,
				MobileNumber: lf.mobile,
				UCC:          lf.ucc,
				MPIN:         mpin,
			}
			if err := creds.Validate(); err != nil {
				return err
			}

			client := newWorkerClient(flags, currentCtx)
			resp, err := client.Validate(cmd.Context(), creds)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			currentCtx.SessionID = resp.SessionID
			currentCtx.UCC = lf.ucc
			if flags.workerURL != "" {
				currentCtx.WorkerURL = flags.workerURL
			}
			if err := config.SaveConfig(); err != nil {
				return fmt.Errorf("failed to save session to config: %w", err)
			}

			appLogger.Debug(cmd.Context(), "Session saved", map[string]interface{}{"context": config.GlobalConfig.CurrentContext})
			fmt.Fprintf(cmd.OutOrStdout(), "%s\nSession saved for context '%s'.\n", resp.Message, config.GlobalConfig.CurrentContext)
			return nil
		},
	}

	cmd.Flags().StringVar(&lf.mobile, "mobile", os.Getenv("NEOCTL_MOBILE"), "registered mobile number, e.g. +919999999999")
	cmd.Flags().StringVar(&lf.ucc, "ucc", os.Getenv("NEOCTL_UCC"), "unique client code")
	cmd.Flags().StringVar(&lf.consumerKey, "consumer-key", os.Getenv("NEOCTL_CONSUMER_KEY"), "API consumer key")
	cmd.Flags().StringVar(&lf.totp, "totp", "", "current TOTP code")
	cmd.Flags().StringVar(&lf.totpSecret, "totp-secret", os.Getenv("NEOCTL_TOTP_SECRET"), "base32 TOTP secret used to generate the code")
	cmd.Flags().StringVar(&lf.mpin, "mpin", "", "MPIN (prompted when empty)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session id of the current context",
		Long:  `Removes the session id from the local config. The record on the worker side expires on its own.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			currentCtx, err := config.GetCurrentContext()
			if err != nil {
				return err
			}
			if currentCtx.SessionID == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in.")
				return nil
			}

			currentCtx.SessionID = ""
			if err := config.SaveConfig(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session removed from context '%s'.\n", config.GlobalConfig.CurrentContext)
			return nil
		},
	}
}

// promptSecret reads a secret without echo when in is a terminal, and a plain
// line otherwise.
func promptSecret(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(secret), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
