package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanindex/configs"
	"github.com/Aman-CERP/amanindex/internal/config"
	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

// dataDirIgnoreEntry is appended to an existing .gitignore by init.
const dataDirIgnoreEntry = ".amanindex/"

func newInitCmd(opts *rootOptions) *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file",
		Long: `Create .amanindex.yaml in the project directory from the built-in
template, and add the data directory to .gitignore when one exists.

With --user, create the machine-wide config instead.`,
		Example: `  # Create .amanindex.yaml in the current project
  amanindex init

  # Create ~/.config/amanindex/config.yaml
  amanindex init --user

  # Overwrite an existing file
  amanindex init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if user {
				path := config.GetUserConfigPath()
				if err := writeTemplate(cmd.OutOrStdout(), path, configs.UserConfigTemplate, force); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)
				return nil
			}

			root, err := filepath.Abs(opts.dir)
			if err != nil {
				return amerrors.ConfigError("failed to resolve project directory", err)
			}
			path := filepath.Join(root, config.ProjectConfigFile)
			if err := writeTemplate(cmd.OutOrStdout(), path, configs.ProjectConfigTemplate, force); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", path)

			added, err := ensureGitignored(filepath.Join(root, ".gitignore"), dataDirIgnoreEntry)
			if err != nil {
				return amerrors.IOError("failed to update .gitignore", err)
			}
			if added {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added %s to .gitignore\n", dataDirIgnoreEntry)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Edit the scopes section, then run 'amanindex rebuild --all'.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	cmd.Flags().BoolVar(&user, "user", false, "Create the user config instead of the project config")

	return cmd
}

// writeTemplate writes content to path. An existing file is only replaced
// with force, after a timestamped backup is taken.
func writeTemplate(out io.Writer, path, content string, force bool) error {
	if _, err := os.Stat(path); err == nil {
		if !force {
			return amerrors.New(amerrors.ErrCodeInvalidInput, path+" already exists", nil).
				WithSuggestion("Pass --force to overwrite it")
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return amerrors.IOError("failed to back up "+path, err)
		}
		_, _ = fmt.Fprintf(out, "Backed up %s to %s\n", filepath.Base(path), backup)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return amerrors.IOError("failed to create "+filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return amerrors.IOError("failed to write "+path, err)
	}
	return nil
}

// ensureGitignored appends entry to an existing .gitignore unless a line
// already covers it. A missing .gitignore is left alone.
func ensureGitignored(path, entry string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	want := strings.TrimSuffix(entry, "/")
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(sc.Text()), "/"), "/")
		if line == want {
			return false, nil
		}
	}

	var buf bytes.Buffer
	buf.Write(data)
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		buf.WriteByte('\n')
	}
	buf.WriteString(entry + "\n")
	return true, os.WriteFile(path, buf.Bytes(), 0o644)
}
