package commands

import (
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/invsync/internal/presentation/cli/output"
)

// VersionInfo holds version information for JSON output.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the version, build information, and platform details for invsync.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd.OutOrStdout(), short)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")

	return cmd
}

func runVersion(w io.Writer, short bool) error {
	format, err := output.ParseFormat(globalFlags.Output)
	if err != nil {
		return err
	}

	formatter := output.NewFormatter(
		output.WithWriter(w),
		output.WithFormat(format),
		output.WithColor(format != output.FormatJSON && output.ColorSupported()),
	)

	if short {
		if format == output.FormatJSON {
			return formatter.JSON(map[string]string{"version": Version})
		}
		return formatter.Println("%s", Version)
	}

	info := VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	if format == output.FormatJSON {
		return formatter.JSON(info)
	}

	formatter.Header("invsync")
	formatter.Println("  %s  %s", formatter.Dim("Version:"), info.Version)
	formatter.Println("  %s  %s", formatter.Dim("Git Commit:"), info.GitCommit)
	formatter.Println("  %s  %s", formatter.Dim("Build Date:"), info.BuildDate)
	formatter.Println("  %s  %s", formatter.Dim("Go Version:"), info.GoVersion)
	formatter.Println("  %s  %s", formatter.Dim("Platform:"), info.Platform)

	return nil
}
